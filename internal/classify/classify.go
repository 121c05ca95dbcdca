package classify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// HTTPProbe is a snapshot of the response fetched from a candidate app.
// Probe performs the fetch; Classify only reads the snapshot.
type HTTPProbe struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

const maxProbeBody = 256 << 10 // cap HTML read; markers appear early

// Probe fetches url and packages the response for classification.
// Returns nil on any transport error; a nil probe simply removes the
// HTTP evidence source.
func Probe(ctx context.Context, client *http.Client, url string) *HTTPProbe {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	return &HTTPProbe{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
}

// manifestRule maps working-directory evidence to a framework. Rules are
// evaluated in order; the first match wins, so more specific frameworks
// (NextJS includes react, Angular ships angular.json) come first.
type manifestRule struct {
	framework Framework
	deps      []string // any package.json dependency
	files     []string // any marker file
	pyDeps    []string // any requirements.txt entry
}

var manifestRules = []manifestRule{
	{framework: NextJS, deps: []string{"next"}, files: []string{"next.config.js", "next.config.mjs", "next.config.ts"}},
	{framework: Angular, deps: []string{"@angular/core", "@angular/common"}, files: []string{"angular.json"}},
	{framework: Vue, deps: []string{"vue", "@vue/cli-service", "@vitejs/plugin-vue"}},
	{framework: React, deps: []string{"react", "react-dom", "react-scripts"}},
	{framework: Vite, deps: []string{"vite"}, files: []string{"vite.config.js", "vite.config.ts"}},
	{framework: Express, deps: []string{"express"}},
	{framework: Django, files: []string{"manage.py"}, pyDeps: []string{"django"}},
	{framework: Flask, pyDeps: []string{"flask"}},
}

// headerRule matches the X-Powered-By response header.
type headerRule struct {
	marker    string
	framework Framework
}

var headerRules = []headerRule{
	{"express", Express},
	{"flask", Flask},
	{"django", Django},
	{"next.js", NextJS},
}

// bodyRule matches a lowercased substring of the served HTML.
type bodyRule struct {
	marker    string
	framework Framework
}

var bodyRules = []bodyRule{
	{"__next", NextJS},
	{"_next/", NextJS},
	{"data-reactroot", React},
	{"react", React},
	{"vue", Vue},
	{"ng-version", Angular},
	{"angular", Angular},
	{"vite/client", Vite},
	{"vite", Vite},
}

// portDefaults is the last-resort guess when neither manifest nor HTTP
// evidence is conclusive.
var portDefaults = map[int]Framework{
	3000: React,
	5173: Vite,
	5174: Vite,
	4200: Angular,
	5000: Flask,
	8000: Django,
}

// Classify runs the evidence chain: manifest, then HTTP response, then
// port default. Pure and deterministic over its inputs; nil inputs drop
// the corresponding evidence source. Port 0 disables the port fallback.
func Classify(manifest *Manifest, probe *HTTPProbe, port int) Framework {
	if fw, ok := classifyManifest(manifest); ok {
		return fw
	}
	if fw, ok := classifyProbe(probe); ok {
		return fw
	}
	if fw, ok := portDefaults[port]; ok {
		return fw
	}
	return Unknown
}

func classifyManifest(m *Manifest) (Framework, bool) {
	if m == nil {
		return Unknown, false
	}
	for _, rule := range manifestRules {
		if m.hasDep(rule.deps...) || m.hasFile(rule.files...) || m.hasRequirement(rule.pyDeps...) {
			return rule.framework, true
		}
	}
	return Unknown, false
}

func classifyProbe(p *HTTPProbe) (Framework, bool) {
	if p == nil {
		return Unknown, false
	}
	if powered := strings.ToLower(p.Header.Get("X-Powered-By")); powered != "" {
		for _, rule := range headerRules {
			if strings.Contains(powered, rule.marker) {
				return rule.framework, true
			}
		}
	}
	if len(p.Body) == 0 {
		return Unknown, false
	}

	// Structural signals beat substring matches: attribute prefixes like
	// ng-* and v-* identify Angular/Vue templates even when the marker
	// words never appear in text.
	if fw, ok := scanHTML(p.Body); ok {
		return fw, true
	}

	lower := strings.ToLower(string(p.Body))
	for _, rule := range bodyRules {
		if strings.Contains(lower, rule.marker) {
			return rule.framework, true
		}
	}
	return Unknown, false
}

// scanHTML tokenizes the body and looks for framework-specific element
// attributes and asset paths.
func scanHTML(body []byte) (Framework, bool) {
	tz := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch tz.Next() {
		case html.ErrorToken:
			return Unknown, false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tz.Token()
			for _, attr := range tok.Attr {
				key := strings.ToLower(attr.Key)
				val := strings.ToLower(attr.Val)
				switch {
				case strings.HasPrefix(key, "ng-") || key == "ng-version":
					return Angular, true
				case strings.HasPrefix(key, "v-"):
					return Vue, true
				case key == "data-reactroot":
					return React, true
				case key == "id" && val == "__next":
					return NextJS, true
				case key == "src" && strings.Contains(val, "/_next/"):
					return NextJS, true
				case key == "src" && strings.Contains(val, "vite/client"):
					return Vite, true
				}
			}
		}
	}
}
