package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appshot/internal/capture"
	"appshot/internal/classify"
)

func writeImage(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("png"), 0o644))
}

func testSession(t *testing.T) *capture.Session {
	t.Helper()
	dir := t.TempDir()
	writeImage(t, dir, "desktop.png")
	writeImage(t, dir, "tablet.png")

	return &capture.Session{
		ID:        "3000_20250101_120000_abcd1234",
		Port:      3000,
		URL:       "http://localhost:3000",
		Framework: classify.React,
		Timestamp: time.Now(),
		Success:   true,
		ViewportResults: []capture.ViewportResult{
			{Viewport: "desktop", ImagePath: "desktop.png", Success: true},
			{Viewport: "tablet", ImagePath: "tablet.png", Success: true},
			{Viewport: "mobile", ImagePath: "mobile.png", Success: true}, // file absent
		},
		PagesVisited: []capture.PageResult{
			{
				Path: "/", Name: "home", Success: true,
				Viewports: []capture.ViewportResult{
					{Viewport: "desktop", ImagePath: "desktop.png", Success: true},
					{Viewport: "tablet", ImagePath: "tablet.png", Success: true},
					{Viewport: "mobile", ImagePath: "mobile.png", Success: true},
				},
			},
		},
		OutputDir: dir,
	}
}

func TestRender(t *testing.T) {
	g := New(nil)
	s := testSession(t)

	doc, err := g.Render([]*capture.Session{s})
	require.NoError(t, err)
	html := string(doc)

	assert.Contains(t, html, "http://localhost:3000")
	assert.Contains(t, html, "React")
	assert.Contains(t, html, `src="desktop.png"`)
	// mobile.png does not exist: placeholder, no broken img tag.
	assert.Contains(t, html, "image unavailable")
	assert.NotContains(t, html, `src="mobile.png"`)
}

func TestRender_MissingImagePlaceholder(t *testing.T) {
	g := New(nil)
	s := testSession(t)
	// Delete every image; the report must still render.
	require.NoError(t, os.Remove(filepath.Join(s.OutputDir, "desktop.png")))
	require.NoError(t, os.Remove(filepath.Join(s.OutputDir, "tablet.png")))

	doc, err := g.Render([]*capture.Session{s})
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(doc), "image unavailable"))
}

func TestRender_FailedSessionStillRendered(t *testing.T) {
	g := New(nil)
	s := testSession(t)
	s.Success = false
	s.Degraded = true

	doc, err := g.Render([]*capture.Session{s})
	require.NoError(t, err)
	assert.Contains(t, string(doc), "failed")
	assert.Contains(t, string(doc), "degraded")
}

func TestRender_ErrorArtifacts(t *testing.T) {
	g := New(nil)
	s := testSession(t)
	writeImage(t, s.OutputDir, "errors_detected.png")
	s.ErrorArtifacts = &capture.ErrorArtifacts{
		ImagePath: "errors_detected.png",
		Matches: []capture.ErrorMatch{
			{Page: "home", Selector: ".error-boundary", Text: "Boom"},
		},
	}

	doc, err := g.Render([]*capture.Session{s})
	require.NoError(t, err)
	html := string(doc)
	assert.Contains(t, html, ".error-boundary")
	assert.Contains(t, html, "Boom")
	assert.Contains(t, html, `src="errors_detected.png"`)
}

func TestWriteForSession_RoundTripWithManifest(t *testing.T) {
	g := New(nil)
	s := testSession(t)
	require.NoError(t, s.WriteManifest())

	// The generator must be able to work entirely from a re-read manifest.
	loaded, err := capture.LoadSession(s.OutputDir)
	require.NoError(t, err)

	path, err := g.WriteForSession(loaded)
	require.NoError(t, err)
	assert.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), s.ID)
}

func TestRender_SessionOrderPreserved(t *testing.T) {
	g := New(nil)
	first := testSession(t)
	second := testSession(t)
	second.ID = "9999_20250101_130000_ffff0000"
	second.URL = "http://localhost:9999"

	doc, err := g.Render([]*capture.Session{first, second})
	require.NoError(t, err)
	html := string(doc)
	assert.Less(t, strings.Index(html, first.ID), strings.Index(html, second.ID))
}

func TestRenderAt_PrefixesImagePathsForCombinedReport(t *testing.T) {
	g := New(nil)
	root := t.TempDir()
	dir := filepath.Join(root, "webapp_3000_20250101_120000_abcd1234")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeImage(t, dir, "desktop.png")

	s := testSession(t)
	s.OutputDir = dir

	doc, err := g.RenderAt([]*capture.Session{s}, root)
	require.NoError(t, err)
	assert.Contains(t, string(doc), `src="webapp_3000_20250101_120000_abcd1234/desktop.png"`)
}
