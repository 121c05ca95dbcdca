// Package plan defines capture policies: which pages to visit, which
// viewports to render, which DOM selectors signal an error state, and
// how long to settle before screenshotting. Plans are keyed by framework
// and loaded from a YAML document; anything missing or malformed falls
// back to the generic default plan.
package plan

import (
	"fmt"
	"os"
	"time"

	"appshot/internal/classify"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Viewport is a named browser window size.
type Viewport struct {
	Name   string `yaml:"name" json:"name"`
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
}

// Page is one entry of the pages-to-visit list. Optional pages that fail
// to load do not abort the rest of the plan.
type Page struct {
	Path            string `yaml:"path" json:"path"`
	Name            string `yaml:"name" json:"name"`
	Optional        bool   `yaml:"optional" json:"optional"`
	WaitForSelector string `yaml:"wait_for_selector,omitempty" json:"waitForSelector,omitempty"`
}

// Plan is the capture policy for one framework or project.
type Plan struct {
	Framework           classify.Framework `yaml:"framework" json:"framework"`
	DevCommand          string             `yaml:"dev_command,omitempty" json:"devCommand,omitempty"` // informational only
	Port                int                `yaml:"port,omitempty" json:"port,omitempty"`
	Viewports           []Viewport         `yaml:"viewports" json:"viewports"`
	Pages               []Page             `yaml:"pages_to_test" json:"pagesToTest"`
	ErrorSelectors      []string           `yaml:"error_selectors" json:"errorSelectors"`
	WaitBeforeCaptureMs int                `yaml:"wait_before_capture_ms" json:"waitBeforeCaptureMs"`
	WatchFiles          []string           `yaml:"watch_files,omitempty" json:"watchFiles,omitempty"`
	IgnorePatterns      []string           `yaml:"ignore_patterns,omitempty" json:"ignorePatterns,omitempty"`
}

// WaitBeforeCapture returns the settle delay as a duration.
func (p Plan) WaitBeforeCapture() time.Duration {
	if p.WaitBeforeCaptureMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(p.WaitBeforeCaptureMs) * time.Millisecond
}

// DefaultViewports mirror the classic desktop/tablet/mobile trio.
func DefaultViewports() []Viewport {
	return []Viewport{
		{Name: "desktop", Width: 1920, Height: 1080},
		{Name: "tablet", Width: 768, Height: 1024},
		{Name: "mobile", Width: 375, Height: 667},
	}
}

// DefaultErrorSelectors are the generic error-state indicators scanned on
// every page when a plan does not override them.
func DefaultErrorSelectors() []string {
	return []string{
		".error",
		".error-boundary",
		".alert-danger",
		`[data-testid="error-message"]`,
	}
}

// Default is the generic plan used for unknown frameworks and as the
// fallback when a plan file cannot be parsed: single primary page, three
// viewports, generic error selectors.
func Default() Plan {
	return Plan{
		Framework:           classify.Unknown,
		Viewports:           DefaultViewports(),
		Pages:               []Page{{Path: "/", Name: "home"}},
		ErrorSelectors:      DefaultErrorSelectors(),
		WaitBeforeCaptureMs: 2000,
	}
}

// watch pattern defaults per framework family, from the frameworks'
// conventional source layouts.
var (
	nodeWatch   = []string{"*.js", "*.jsx", "*.ts", "*.tsx", "*.css", "*.scss", "*.json", "*.html"}
	vueWatch    = []string{"*.vue", "*.js", "*.ts", "*.css", "*.scss", "*.json"}
	pythonWatch = []string{"*.py", "*.html", "*.css", "*.js", "*.json"}

	defaultIgnore = []string{
		"node_modules", ".git", "__pycache__", ".venv", "venv",
		"dist", "build", ".next", ".nuxt", "coverage", "screenshots",
	}
)

// builtins are the per-framework default plans.
func builtins() map[classify.Framework]Plan {
	base := func(fw classify.Framework, port int, dev string, watch []string) Plan {
		p := Default()
		p.Framework = fw
		p.Port = port
		p.DevCommand = dev
		p.WatchFiles = watch
		p.IgnorePatterns = append([]string{}, defaultIgnore...)
		return p
	}
	return map[classify.Framework]Plan{
		classify.React:   base(classify.React, 3000, "npm start", nodeWatch),
		classify.NextJS:  base(classify.NextJS, 3000, "npm run dev", nodeWatch),
		classify.Vue:     base(classify.Vue, 3000, "npm run serve", vueWatch),
		classify.Angular: base(classify.Angular, 4200, "ng serve", nodeWatch),
		classify.Vite:    base(classify.Vite, 5173, "npm run dev", nodeWatch),
		classify.Express: base(classify.Express, 3000, "npm start", nodeWatch),
		classify.Django:  base(classify.Django, 8000, "python manage.py runserver", pythonWatch),
		classify.Flask:   base(classify.Flask, 5000, "flask run", pythonWatch),
	}
}

// Set is a resolved collection of plans keyed by framework.
type Set struct {
	plans map[classify.Framework]Plan
}

// NewSet returns the built-in plan set.
func NewSet() *Set {
	return &Set{plans: builtins()}
}

// For returns the plan for fw, falling back to the generic default. The
// returned plan always has non-empty viewports, pages, and error
// selectors.
func (s *Set) For(fw classify.Framework) Plan {
	p, ok := s.plans[fw]
	if !ok {
		p = Default()
	}
	return normalize(p)
}

// Put registers or overrides the plan for its framework.
func (s *Set) Put(p Plan) {
	if s.plans == nil {
		s.plans = make(map[classify.Framework]Plan)
	}
	s.plans[p.Framework] = p
}

func normalize(p Plan) Plan {
	if len(p.Viewports) == 0 {
		p.Viewports = DefaultViewports()
	}
	if len(p.Pages) == 0 {
		p.Pages = []Page{{Path: "/", Name: "home"}}
	}
	if len(p.ErrorSelectors) == 0 {
		p.ErrorSelectors = DefaultErrorSelectors()
	}
	if p.WaitBeforeCaptureMs <= 0 {
		p.WaitBeforeCaptureMs = 2000
	}
	return p
}

// planFile is the YAML document shape: a list of plans.
type planFile struct {
	Plans []Plan `yaml:"plans"`
}

// Load reads a plan document and merges it over the built-ins. A missing
// file returns the built-ins unchanged; a malformed file is reported once
// through logger and the built-ins are used (the monitor must start
// regardless of plan-file quality).
func Load(path string, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := NewSet()
	if path == "" {
		return set
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("capture plan file unreadable, using defaults",
				zap.String("path", path), zap.Error(err))
		}
		return set
	}

	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		logger.Warn("capture plan file malformed, using defaults",
			zap.String("path", path), zap.Error(err))
		return set
	}

	for _, p := range pf.Plans {
		if !classify.Known(p.Framework) {
			logger.Warn("capture plan for unknown framework skipped",
				zap.String("framework", string(p.Framework)))
			continue
		}
		set.Put(p)
	}
	logger.Info("capture plans loaded",
		zap.String("path", path), zap.Int("plans", len(pf.Plans)))
	return set
}

// Slug converts a page name into a filesystem-safe directory component.
func Slug(name string) string {
	if name == "" {
		return "page"
	}
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == '-' || r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Validate reports structural problems in a plan without repairing them.
// Used by the CLI to lint user plan files.
func (p Plan) Validate() error {
	if !classify.Known(p.Framework) {
		return fmt.Errorf("unknown framework %q", p.Framework)
	}
	for _, vp := range p.Viewports {
		if vp.Name == "" || vp.Width <= 0 || vp.Height <= 0 {
			return fmt.Errorf("viewport %q has invalid dimensions %dx%d", vp.Name, vp.Width, vp.Height)
		}
	}
	for _, pg := range p.Pages {
		if pg.Path == "" {
			return fmt.Errorf("page %q has empty path", pg.Name)
		}
	}
	return nil
}
