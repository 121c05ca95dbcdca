package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"appshot/internal/classify"
	"appshot/internal/plan"
)

// Config holds browser and output settings for the capture orchestrator.
type Config struct {
	ChromeBin           string `yaml:"chrome_bin"` // empty = let the launcher find one
	Headless            bool   `yaml:"headless"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	OutputRoot          string `yaml:"output_root"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		NavigationTimeoutMs: 30000,
		OutputRoot:          "screenshots",
	}
}

// NavigationTimeout returns the per-navigation deadline.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// App is the capture orchestrator's view of a detected application.
type App struct {
	Port        int
	URL         string
	Framework   classify.Framework
	ProcessName string
	WorkingDir  string
}

// Capturer orchestrates one browser session per capture invocation.
type Capturer struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Capturer. logger may be nil.
func New(cfg Config, logger *zap.Logger) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{cfg: cfg, logger: logger}
}

// Capture runs the full plan against app: every page in plan order, every
// viewport in plan order, plus an error-indicator scan per page. degraded
// marks a session captured after a readiness timeout.
//
// The returned error is non-nil only for session-fatal conditions
// (browser launch, output directory, cancellation); per-page and
// per-viewport failures are recorded inside the session instead. Even on
// a fatal error the manifest is written when the directory exists, so a
// failed session still shows up in reports.
func (c *Capturer) Capture(ctx context.Context, app App, p plan.Plan, degraded bool) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:          NewSessionID(app.Port, now),
		Port:        app.Port,
		URL:         app.URL,
		Framework:   app.Framework,
		ProcessName: app.ProcessName,
		Timestamp:   now,
		Degraded:    degraded,
	}
	session.OutputDir = filepath.Join(c.cfg.OutputRoot, "webapp_"+session.ID)

	if err := os.MkdirAll(session.OutputDir, 0o755); err != nil {
		return session, fmt.Errorf("create session directory: %w", err)
	}

	browser, release, err := c.acquireBrowser(ctx)
	if err != nil {
		session.Success = false
		_ = session.WriteManifest()
		return session, fmt.Errorf("acquire browser: %w", err)
	}
	defer release()

	c.logger.Info("capture session started",
		zap.String("session", session.ID),
		zap.String("url", app.URL),
		zap.String("framework", app.Framework.String()),
		zap.Int("pages", len(p.Pages)))

	session.Success = true
	for i, pg := range p.Pages {
		if ctx.Err() != nil {
			session.Success = false
			break
		}

		pageDir := session.OutputDir
		if i > 0 {
			pageDir = filepath.Join(session.OutputDir, plan.Slug(pg.Name))
			if err := os.MkdirAll(pageDir, 0o755); err != nil {
				c.logger.Warn("page directory failed", zap.String("page", pg.Name), zap.Error(err))
				session.PagesVisited = append(session.PagesVisited, PageResult{
					Path: pg.Path, Name: pg.Name, Optional: pg.Optional, Success: false,
				})
				if !pg.Optional {
					session.Success = false
				}
				continue
			}
		}

		result := c.capturePage(ctx, browser, session, app, p, pg, pageDir)
		session.PagesVisited = append(session.PagesVisited, result)
		if i == 0 {
			session.ViewportResults = result.Viewports
		}
		if !result.Success && !pg.Optional {
			session.Success = false
		}
	}

	if ctx.Err() != nil {
		// A cancelled session must never look complete.
		session.Success = false
		_ = session.WriteManifest()
		return session, ctx.Err()
	}

	if session.ErrorArtifacts != nil {
		if err := writeErrorList(session); err != nil {
			c.logger.Warn("error list write failed", zap.Error(err))
		}
	}

	if err := session.WriteManifest(); err != nil {
		session.Success = false
		return session, err
	}

	c.logger.Info("capture session finished",
		zap.String("session", session.ID),
		zap.Bool("success", session.Success),
		zap.Bool("degraded", session.Degraded),
		zap.String("dir", session.OutputDir))
	return session, nil
}

// acquireBrowser launches a dedicated headless browser and connects to
// it. The returned release func closes the browser and reaps the
// launched process; it is safe to call exactly once and must always be
// called.
func (c *Capturer) acquireBrowser(ctx context.Context) (*rod.Browser, func(), error) {
	l := launcher.New().Headless(c.cfg.Headless)
	if c.cfg.ChromeBin != "" {
		l = l.Bin(c.cfg.ChromeBin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect to browser: %w", err)
	}

	release := func() {
		_ = browser.Close()
		l.Cleanup()
	}
	return browser, release, nil
}

// capturePage navigates to one page and walks the viewport list in plan
// order. A navigation failure records success=false and skips the
// viewports for this page only.
func (c *Capturer) capturePage(ctx context.Context, browser *rod.Browser, session *Session, app App, p plan.Plan, pg plan.Page, dir string) PageResult {
	result := PageResult{Path: pg.Path, Name: pg.Name, Optional: pg.Optional}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		c.logger.Warn("page create failed", zap.String("page", pg.Name), zap.Error(err))
		return result
	}
	defer func() { _ = page.Close() }()

	var (
		consoleMu   sync.Mutex
		consoleErrs []string
	)
	waitEvents := page.EachEvent(func(ev *proto.RuntimeConsoleAPICalled) {
		if ev.Type != proto.RuntimeConsoleAPICalledTypeError && ev.Type != proto.RuntimeConsoleAPICalledTypeWarning {
			return
		}
		consoleMu.Lock()
		consoleErrs = append(consoleErrs, stringifyConsoleArgs(ev.Args))
		consoleMu.Unlock()
	})
	go waitEvents()

	url := strings.TrimRight(app.URL, "/") + pg.Path
	navTimeout := c.cfg.NavigationTimeout()
	if err := page.Timeout(navTimeout).Navigate(url); err != nil {
		c.logger.Warn("navigation failed",
			zap.String("page", pg.Name), zap.String("url", url), zap.Error(err))
		return result
	}
	if err := page.Timeout(navTimeout).WaitLoad(); err != nil {
		c.logger.Warn("page load timed out",
			zap.String("page", pg.Name), zap.String("url", url), zap.Error(err))
		return result
	}

	if pg.WaitForSelector != "" {
		if _, err := page.Timeout(navTimeout).Element(pg.WaitForSelector); err != nil {
			// DOM-ready hint never showed up; capture what is there.
			c.logger.Warn("wait_for_selector not found",
				zap.String("page", pg.Name), zap.String("selector", pg.WaitForSelector))
		}
	}

	select {
	case <-ctx.Done():
		return result
	case <-time.After(p.WaitBeforeCapture()):
	}

	result.Success = true
	for _, vp := range p.Viewports {
		result.Viewports = append(result.Viewports, c.captureViewport(session, page, vp, dir))
	}

	matches := c.scanErrorSelectors(page, pg, p.ErrorSelectors)
	if len(matches) > 0 {
		result.ErrorDetected = true
		c.recordErrorArtifacts(session, page, matches)
	}

	consoleMu.Lock()
	result.ConsoleErrors = append([]string{}, consoleErrs...)
	consoleMu.Unlock()
	return result
}

// captureViewport resizes the page and takes one full-page screenshot
// under the deterministic name <viewport>.png.
func (c *Capturer) captureViewport(session *Session, page *rod.Page, vp plan.Viewport, dir string) ViewportResult {
	start := time.Now()
	result := ViewportResult{Viewport: vp.Name}

	err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1.0,
		Mobile:            vp.Width <= 600,
	}).Call(page)
	if err != nil {
		c.logger.Warn("viewport override failed", zap.String("viewport", vp.Name), zap.Error(err))
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	data, err := page.Screenshot(true, nil)
	if err != nil {
		c.logger.Warn("screenshot failed", zap.String("viewport", vp.Name), zap.Error(err))
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	filename := vp.Name + ".png"
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		c.logger.Warn("screenshot write failed", zap.String("viewport", vp.Name), zap.Error(err))
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	rel, err := filepath.Rel(session.OutputDir, filepath.Join(dir, filename))
	if err != nil {
		rel = filename
	}
	result.ImagePath = rel
	result.Success = true
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

// scanErrorSelectors queries each configured selector against the DOM
// and collects the visible text of every match.
func (c *Capturer) scanErrorSelectors(page *rod.Page, pg plan.Page, selectors []string) []ErrorMatch {
	var matches []ErrorMatch
	for _, sel := range selectors {
		elements, err := page.Elements(sel)
		if err != nil {
			continue
		}
		for _, el := range elements {
			text, err := el.Text()
			if err != nil {
				text = ""
			}
			matches = append(matches, ErrorMatch{Page: pg.Name, Selector: sel, Text: strings.TrimSpace(text)})
		}
	}
	return matches
}

// recordErrorArtifacts persists the error screenshot and match list the
// first time any page in the session trips an error selector.
func (c *Capturer) recordErrorArtifacts(session *Session, page *rod.Page, matches []ErrorMatch) {
	if session.ErrorArtifacts != nil {
		session.ErrorArtifacts.Matches = append(session.ErrorArtifacts.Matches, matches...)
		return
	}

	artifacts := &ErrorArtifacts{Matches: matches}
	if data, err := page.Screenshot(false, nil); err == nil {
		name := "errors_detected.png"
		if err := os.WriteFile(filepath.Join(session.OutputDir, name), data, 0o644); err == nil {
			artifacts.ImagePath = name
		}
	}
	session.ErrorArtifacts = artifacts

	c.logger.Warn("error indicators detected",
		zap.String("session", session.ID),
		zap.Int("matches", len(matches)))
}

// writeErrorList mirrors the manifest's error matches into errors.json
// so the error snapshot is self-describing without the full manifest.
func writeErrorList(session *Session) error {
	data, err := json.MarshalIndent(session.ErrorArtifacts.Matches, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(session.OutputDir, "errors.json"), data, 0o644)
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
