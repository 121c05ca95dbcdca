// Package report renders human-readable HTML summaries from persisted
// capture sessions. It is a pure consumer: it reads manifests and checks
// image presence, never touching the browser. A manifest that references
// a missing image renders a placeholder instead of failing.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"appshot/internal/capture"
)

// FileName is the per-session report written next to the manifest.
const FileName = "report.html"

func nowString() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

// imageView is one screenshot slot in the rendered document.
type imageView struct {
	Label   string
	Src     string
	Missing bool
}

type pageView struct {
	Name          string
	Path          string
	Success       bool
	Optional      bool
	ErrorDetected bool
	Images        []imageView
	ConsoleErrors []string
}

type sessionView struct {
	ID          string
	URL         string
	Framework   string
	ProcessName string
	Timestamp   string
	Success     bool
	Degraded    bool
	Pages       []pageView
	ErrorImage  *imageView
	ErrorTexts  []string
}

type reportView struct {
	GeneratedAt string
	Sessions    []sessionView
}

// Generator renders session reports.
type Generator struct {
	logger *zap.Logger
}

// New creates a Generator. logger may be nil.
func New(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{logger: logger}
}

// Render produces one self-contained HTML document over the given
// sessions, in input order. Image src attributes are kept relative to
// each session's directory so a report written inside that directory
// links its own images directly.
func (g *Generator) Render(sessions []*capture.Session) ([]byte, error) {
	return g.RenderAt(sessions, "")
}

// RenderAt renders for a report written at baseDir: image src attributes
// are made relative to baseDir instead of each session's own directory.
// An empty baseDir keeps session-relative paths.
func (g *Generator) RenderAt(sessions []*capture.Session, baseDir string) ([]byte, error) {
	view := reportView{GeneratedAt: nowString()}
	for _, s := range sessions {
		prefix := ""
		if baseDir != "" {
			if rel, err := filepath.Rel(baseDir, s.OutputDir); err == nil && rel != "." {
				prefix = rel
			}
		}
		view.Sessions = append(view.Sessions, g.sessionView(s, prefix))
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteForSession renders a single-session report into the session's own
// output directory.
func (g *Generator) WriteForSession(s *capture.Session) (string, error) {
	doc, err := g.Render([]*capture.Session{s})
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.OutputDir, FileName)
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	g.logger.Info("report written", zap.String("path", path))
	return path, nil
}

func (g *Generator) sessionView(s *capture.Session, prefix string) sessionView {
	sv := sessionView{
		ID:          s.ID,
		URL:         s.URL,
		Framework:   s.Framework.String(),
		ProcessName: s.ProcessName,
		Timestamp:   s.Timestamp.Format("2006-01-02 15:04:05"),
		Success:     s.Success,
		Degraded:    s.Degraded,
	}

	for _, pg := range s.PagesVisited {
		pv := pageView{
			Name:          pg.Name,
			Path:          pg.Path,
			Success:       pg.Success,
			Optional:      pg.Optional,
			ErrorDetected: pg.ErrorDetected,
			ConsoleErrors: pg.ConsoleErrors,
		}
		for _, vr := range pg.Viewports {
			pv.Images = append(pv.Images, g.imageView(s.OutputDir, prefix, vr))
		}
		sv.Pages = append(sv.Pages, pv)
	}

	if s.ErrorArtifacts != nil {
		if s.ErrorArtifacts.ImagePath != "" {
			iv := g.imageView(s.OutputDir, prefix, capture.ViewportResult{
				Viewport:  "errors",
				ImagePath: s.ErrorArtifacts.ImagePath,
				Success:   true,
			})
			sv.ErrorImage = &iv
		}
		for _, m := range s.ErrorArtifacts.Matches {
			sv.ErrorTexts = append(sv.ErrorTexts, fmt.Sprintf("%s (%s): %s", m.Selector, m.Page, m.Text))
		}
	}
	return sv
}

// imageView checks that the referenced image actually exists; absent or
// never-captured images degrade to placeholders.
func (g *Generator) imageView(dir, prefix string, vr capture.ViewportResult) imageView {
	iv := imageView{Label: vr.Viewport, Src: vr.ImagePath}
	if prefix != "" {
		iv.Src = filepath.ToSlash(filepath.Join(prefix, vr.ImagePath))
	}
	if !vr.Success || vr.ImagePath == "" {
		iv.Missing = true
		return iv
	}
	if _, err := os.Stat(filepath.Join(dir, vr.ImagePath)); err != nil {
		g.logger.Warn("report references missing image",
			zap.String("dir", dir), zap.String("image", vr.ImagePath))
		iv.Missing = true
	}
	return iv
}

var reportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Webapp Capture Report</title>
<style>
  body { font-family: Arial, sans-serif; margin: 20px; color: #222; }
  .session { border: 1px solid #ddd; border-radius: 6px; padding: 20px; margin-bottom: 30px; }
  .header { background: #f5f5f5; padding: 15px; border-radius: 5px; margin-bottom: 15px; }
  .badge { display: inline-block; padding: 2px 8px; border-radius: 3px; font-size: 12px; color: #fff; }
  .ok { background: #2e7d32; }
  .fail { background: #c62828; }
  .degraded { background: #ef6c00; }
  .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(280px, 1fr)); gap: 16px; }
  .shot img { max-width: 100%; border: 1px solid #ddd; border-radius: 4px; }
  .placeholder { border: 1px dashed #bbb; border-radius: 4px; padding: 40px 10px; text-align: center; color: #888; background: #fafafa; }
  .errors { background: #ffe7e7; padding: 12px; border-radius: 5px; margin-top: 12px; }
  .console { background: #fff8e1; padding: 8px 12px; border-radius: 5px; margin-top: 8px; font-family: monospace; font-size: 12px; }
  h3 { margin-bottom: 6px; }
</style>
</head>
<body>
<h1>Webapp Capture Report</h1>
{{range .Sessions}}
<div class="session">
  <div class="header">
    <strong>{{.URL}}</strong> &mdash; {{.Framework}}
    {{if .Success}}<span class="badge ok">captured</span>{{else}}<span class="badge fail">failed</span>{{end}}
    {{if .Degraded}}<span class="badge degraded">degraded</span>{{end}}<br>
    Session: {{.ID}}<br>
    {{if .ProcessName}}Process: {{.ProcessName}}<br>{{end}}
    Captured at: {{.Timestamp}}
  </div>
  {{range .Pages}}
  <h3>{{.Name}} <small>({{.Path}})</small>
    {{if not .Success}}<span class="badge fail">load failed</span>{{end}}
    {{if .ErrorDetected}}<span class="badge fail">errors on page</span>{{end}}
  </h3>
  <div class="grid">
    {{range .Images}}
    <div class="shot">
      <h4>{{.Label}}</h4>
      {{if .Missing}}<div class="placeholder">image unavailable</div>{{else}}<img src="{{.Src}}" alt="{{.Label}}">{{end}}
    </div>
    {{end}}
  </div>
  {{if .ConsoleErrors}}
  <div class="console">{{range .ConsoleErrors}}{{.}}<br>{{end}}</div>
  {{end}}
  {{end}}
  {{if .ErrorTexts}}
  <div class="errors">
    <strong>Error indicators</strong>
    <ul>{{range .ErrorTexts}}<li>{{.}}</li>{{end}}</ul>
    {{if .ErrorImage}}{{if .ErrorImage.Missing}}<div class="placeholder">error screenshot unavailable</div>{{else}}<img src="{{.ErrorImage.Src}}" alt="errors">{{end}}{{end}}
  </div>
  {{end}}
</div>
{{end}}
<p><small>Generated by appshot &mdash; {{.GeneratedAt}}</small></p>
</body>
</html>
`))
