// Package capture drives a headless browser through a capture plan and
// persists the resulting screenshot bundle. Each invocation acquires its
// own browser, works inside a unique session directory, and always
// releases the browser on exit.
package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"appshot/internal/classify"
)

// ManifestName is the machine-readable session manifest file written
// alongside the images.
const ManifestName = "manifest.json"

// ViewportResult records one screenshot attempt for a named viewport.
// Results keep plan order, which the report generator relies on.
type ViewportResult struct {
	Viewport   string `json:"viewport"`
	ImagePath  string `json:"imagePath"` // relative to the session directory
	DurationMs int64  `json:"captureDurationMs"`
	Success    bool   `json:"success"`
}

// PageResult records one visited page, in plan order.
type PageResult struct {
	Path          string           `json:"path"`
	Name          string           `json:"name"`
	Optional      bool             `json:"optional"`
	Success       bool             `json:"success"`
	ErrorDetected bool             `json:"errorDetected"`
	Viewports     []ViewportResult `json:"viewports"`
	ConsoleErrors []string         `json:"consoleErrors,omitempty"`
}

// ErrorMatch is one DOM element matched by an error-indicator selector.
type ErrorMatch struct {
	Page     string `json:"page"`
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

// ErrorArtifacts bundle the error screenshot with the matched elements.
type ErrorArtifacts struct {
	ImagePath string       `json:"imagePath"`
	Matches   []ErrorMatch `json:"matches"`
}

// Session is one completed (or failed) capture attempt. Immutable once
// persisted; the output directory is never reused.
type Session struct {
	ID              string             `json:"sessionId"`
	Port            int                `json:"port"`
	URL             string             `json:"url"`
	Framework       classify.Framework `json:"framework"`
	ProcessName     string             `json:"processName,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
	Success         bool               `json:"success"`
	Degraded        bool               `json:"degraded"`        // capture proceeded without readiness
	ViewportResults []ViewportResult   `json:"viewportResults"` // primary page, plan order
	PagesVisited    []PageResult       `json:"pagesVisited"`
	ErrorArtifacts  *ErrorArtifacts    `json:"errorArtifacts"` // nil when no error indicators matched
	OutputDir       string             `json:"outputDirectory"`
}

// NewSessionID derives a unique id from the port, the wall clock, and a
// short random suffix so two sessions for the same port can never share
// an output directory.
func NewSessionID(port int, now time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%d_%s_%s", port, now.Format("20060102_150405"), suffix)
}

// WriteManifest persists the session manifest into its output directory.
func (s *Session) WriteManifest() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session manifest: %w", err)
	}
	path := filepath.Join(s.OutputDir, ManifestName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write session manifest: %w", err)
	}
	return nil
}

// LoadSession reads a persisted session manifest from a session
// directory. The images themselves are not opened; a manifest that
// references missing images still loads.
func LoadSession(dir string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("read session manifest: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session manifest: %w", err)
	}
	if s.OutputDir == "" || s.OutputDir != dir {
		// Manifests stay valid when a session directory is moved.
		s.OutputDir = dir
	}
	return &s, nil
}

// LoadSessions reads every session manifest under root, oldest first.
// Directories without a manifest are skipped.
func LoadSessions(root string) ([]*Session, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read session root: %w", err)
	}
	var out []*Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s, err := LoadSession(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
