package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appshot/internal/classify"
)

func sampleSession(t *testing.T) *Session {
	t.Helper()
	dir := t.TempDir()
	return &Session{
		ID:        NewSessionID(3000, time.Now()),
		Port:      3000,
		URL:       "http://localhost:3000",
		Framework: classify.React,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Success:   true,
		ViewportResults: []ViewportResult{
			{Viewport: "desktop", ImagePath: "desktop.png", DurationMs: 120, Success: true},
			{Viewport: "tablet", ImagePath: "tablet.png", DurationMs: 95, Success: true},
			{Viewport: "mobile", ImagePath: "mobile.png", DurationMs: 88, Success: true},
		},
		PagesVisited: []PageResult{
			{Path: "/", Name: "home", Success: true},
			{Path: "/about", Name: "about", Optional: true, Success: false},
		},
		OutputDir: dir,
	}
}

func TestSessionManifestRoundTrip(t *testing.T) {
	s := sampleSession(t)
	require.NoError(t, s.WriteManifest())

	loaded, err := LoadSession(s.OutputDir)
	require.NoError(t, err)

	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, s.Port, loaded.Port)
	assert.Equal(t, s.Framework, loaded.Framework)
	assert.Equal(t, s.ViewportResults, loaded.ViewportResults)
	assert.Equal(t, s.PagesVisited, loaded.PagesVisited)
	assert.Nil(t, loaded.ErrorArtifacts)
	assert.True(t, loaded.Success)
}

func TestSessionManifest_ErrorArtifacts(t *testing.T) {
	s := sampleSession(t)
	s.ErrorArtifacts = &ErrorArtifacts{
		ImagePath: "errors_detected.png",
		Matches: []ErrorMatch{
			{Page: "home", Selector: ".error-boundary", Text: "Something went wrong"},
		},
	}
	require.NoError(t, s.WriteManifest())

	loaded, err := LoadSession(s.OutputDir)
	require.NoError(t, err)
	require.NotNil(t, loaded.ErrorArtifacts)
	assert.Equal(t, ".error-boundary", loaded.ErrorArtifacts.Matches[0].Selector)
	assert.Equal(t, "Something went wrong", loaded.ErrorArtifacts.Matches[0].Text)
}

func TestLoadSession_RelocatedDirectory(t *testing.T) {
	s := sampleSession(t)
	require.NoError(t, s.WriteManifest())

	moved := filepath.Join(t.TempDir(), "relocated")
	require.NoError(t, os.Rename(s.OutputDir, moved))

	loaded, err := LoadSession(moved)
	require.NoError(t, err)
	assert.Equal(t, moved, loaded.OutputDir)
}

func TestLoadSession_Missing(t *testing.T) {
	_, err := LoadSession(t.TempDir())
	assert.Error(t, err)
}

func TestLoadSessions_OldestFirstSkippingStrays(t *testing.T) {
	root := t.TempDir()

	write := func(id string, ts time.Time) {
		s := sampleSession(t)
		s.ID = id
		s.Timestamp = ts
		s.OutputDir = filepath.Join(root, "webapp_"+id)
		require.NoError(t, os.MkdirAll(s.OutputDir, 0o755))
		require.NoError(t, s.WriteManifest())
	}
	newer := time.Now().UTC().Truncate(time.Second)
	write("b", newer)
	write("a", newer.Add(-time.Hour))

	// Directories without a manifest and plain files are ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "no_manifest"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	sessions, err := LoadSessions(root)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "a", sessions[0].ID)
	assert.Equal(t, "b", sessions[1].ID)
}

func TestNewSessionID_Unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := NewSessionID(3000, now)
		assert.False(t, seen[id], "session id %s reused", id)
		seen[id] = true
	}
}
