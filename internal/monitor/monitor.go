// Package monitor runs the detection loop: it diffs the active port set
// against the tracked apps, drives each new app through
// resolve->classify->wait->capture, and retires apps whose ports go
// silent. The tracked-app map is owned by the Monitor and only mutated
// under its lock.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"appshot/internal/capture"
	"appshot/internal/classify"
	"appshot/internal/history"
	"appshot/internal/plan"
	"appshot/internal/procinfo"
	"appshot/internal/readiness"
	"appshot/internal/scanner"
)

// State is a TrackedApp's position in the capture lifecycle.
type State string

const (
	StateDetected     State = "detected"
	StateWaitingReady State = "waiting_ready"
	StateCapturing    State = "capturing"
	StateCaptured     State = "captured"
	StateFailed       State = "failed"
	StateRetired      State = "retired"
)

// TrackedApp is one live application keyed by port.
type TrackedApp struct {
	Port        int
	URL         string
	FirstSeenAt time.Time
	Framework   classify.Framework
	Process     *procinfo.ProcessInfo
	State       State
	LastSession *capture.Session

	inFlight bool
	retired  bool
	watcher  ChangeWatcher
}

// PortScanner reports which of the candidate ports are listening.
type PortScanner interface {
	Scan(ctx context.Context, candidates []int) []int
}

// ReadinessWaiter polls a URL until it responds or the waiter times out.
type ReadinessWaiter interface {
	Wait(ctx context.Context, url string) readiness.Result
}

// Capturer runs one screenshot session for an app.
type Capturer interface {
	Capture(ctx context.Context, app capture.App, p plan.Plan, degraded bool) (*capture.Session, error)
}

// History records detections and finished sessions. Implemented by
// history.Store; nil disables recording.
type History interface {
	RecordDetection(ctx context.Context, d history.Detection) error
	RecordSession(ctx context.Context, s *capture.Session) error
}

// ChangeWatcher is the slice of watcher.Watcher the monitor needs.
type ChangeWatcher interface {
	Start(ctx context.Context) error
	Stop()
}

// WatcherFactory builds a change watcher over an app's working
// directory. Returning an error skips watching for that app.
type WatcherFactory func(dir string, patterns, ignore []string, onChange func(paths []string)) (ChangeWatcher, error)

// Monitor is the lifecycle loop.
type Monitor struct {
	scanner    PortScanner
	resolver   procinfo.Resolver
	waiter     ReadinessWaiter
	capturer   Capturer
	plans      *plan.Set
	hist       History
	logger     *zap.Logger
	httpClient *http.Client

	interval   time.Duration
	candidates []int
	newWatcher WatcherFactory
	onSession  func(*capture.Session)

	mu   sync.Mutex
	apps map[int]*TrackedApp
	grp  *errgroup.Group
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the scan tick interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithCandidates sets the candidate port list to scan.
func WithCandidates(ports []int) Option {
	return func(m *Monitor) { m.candidates = ports }
}

// WithWorkerLimit bounds concurrently running capture pipelines. Each
// pipeline holds one browser, so the limit should stay small.
func WithWorkerLimit(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.grp.SetLimit(n)
		}
	}
}

// WithHistory enables detection/session recording.
func WithHistory(h History) Option {
	return func(m *Monitor) { m.hist = h }
}

// WithChangeWatcher enables source-change recapture for captured apps
// whose working directory is known.
func WithChangeWatcher(f WatcherFactory) Option {
	return func(m *Monitor) { m.newWatcher = f }
}

// WithSessionHook installs a callback invoked after every finished
// session, captured or failed. Used to regenerate the report.
func WithSessionHook(fn func(*capture.Session)) Option {
	return func(m *Monitor) { m.onSession = fn }
}

// WithHTTPClient overrides the client used for classification probes.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Monitor) { m.httpClient = c }
}

// New builds a Monitor. scanner, waiter and capturer are required;
// resolver may be procinfo.NopResolver when process lookup is
// unavailable.
func New(sc PortScanner, resolver procinfo.Resolver, waiter ReadinessWaiter, capturer Capturer, plans *plan.Set, logger *zap.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = procinfo.NopResolver{}
	}
	m := &Monitor{
		scanner:    sc,
		resolver:   resolver,
		waiter:     waiter,
		capturer:   capturer,
		plans:      plans,
		logger:     logger,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		interval:   2 * time.Second,
		candidates: scanner.Candidates(nil, nil),
		apps:       make(map[int]*TrackedApp),
		grp:        &errgroup.Group{},
	}
	m.grp.SetLimit(3)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run ticks until ctx is cancelled, then waits for in-flight captures
// to finish. It always returns nil on clean shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		zap.Duration("interval", m.interval),
		zap.Int("candidate_ports", len(m.candidates)))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping, waiting for in-flight captures")
			err := m.grp.Wait()
			m.stopWatchers()
			return err
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one scan cycle: retire gone apps, track new ones, and
// start pipelines for apps still waiting on a worker slot.
func (m *Monitor) tick(ctx context.Context) {
	active := m.scanner.Scan(ctx, m.candidates)
	activeSet := make(map[int]bool, len(active))
	for _, port := range active {
		activeSet[port] = true
	}

	m.mu.Lock()
	var start []*TrackedApp
	for port, app := range m.apps {
		if !activeSet[port] {
			app.retired = true
			app.State = StateRetired
			if app.watcher != nil {
				app.watcher.Stop()
				app.watcher = nil
			}
			delete(m.apps, port)
			m.logger.Info("app retired", zap.Int("port", port))
		}
	}
	for _, port := range active {
		app, ok := m.apps[port]
		if !ok {
			app = &TrackedApp{
				Port:        port,
				URL:         fmt.Sprintf("http://localhost:%d", port),
				FirstSeenAt: time.Now(),
				Framework:   classify.Unknown,
				State:       StateDetected,
			}
			m.apps[port] = app
			m.logger.Info("new app detected", zap.Int("port", port))
		}
		// Apps past Detected are already being processed or are done;
		// rescans of the same port never start duplicate work.
		if app.State == StateDetected && !app.inFlight {
			start = append(start, app)
		}
	}
	m.mu.Unlock()

	for _, app := range start {
		m.tryStartPipeline(ctx, app)
	}
}

// tryStartPipeline hands the app to the worker group. When all worker
// slots are busy the app stays Detected and is retried next tick.
func (m *Monitor) tryStartPipeline(ctx context.Context, app *TrackedApp) {
	m.mu.Lock()
	if app.inFlight || app.retired || app.State != StateDetected {
		m.mu.Unlock()
		return
	}
	app.inFlight = true
	m.mu.Unlock()

	started := m.grp.TryGo(func() error {
		m.pipeline(ctx, app)
		return nil
	})
	if !started {
		m.mu.Lock()
		app.inFlight = false
		m.mu.Unlock()
		m.logger.Warn("capture workers saturated, deferring app",
			zap.Int("port", app.Port))
	}
}

// pipeline runs the full resolve->classify->wait->capture sequence for
// one app. Every stage degrades instead of failing the loop.
func (m *Monitor) pipeline(ctx context.Context, app *TrackedApp) {
	defer func() {
		m.mu.Lock()
		app.inFlight = false
		m.mu.Unlock()
	}()

	var proc *procinfo.ProcessInfo
	if info, err := m.resolver.Resolve(ctx, app.Port); err != nil {
		m.logger.Debug("process resolution failed",
			zap.Int("port", app.Port), zap.Error(err))
	} else {
		proc = &info
	}

	var manifest *classify.Manifest
	if proc != nil && proc.WorkingDir != "" {
		manifest = classify.ReadManifest(proc.WorkingDir)
	}
	probe := classify.Probe(ctx, m.httpClient, app.URL)
	framework := classify.Classify(manifest, probe, app.Port)

	m.mu.Lock()
	app.Process = proc
	app.Framework = framework
	if app.retired {
		m.mu.Unlock()
		return
	}
	app.State = StateWaitingReady
	m.mu.Unlock()

	m.logger.Info("app classified",
		zap.Int("port", app.Port),
		zap.String("framework", string(framework)),
		zap.String("process", procName(proc)))

	if m.hist != nil {
		det := history.Detection{
			Port:        app.Port,
			URL:         app.URL,
			Framework:   string(framework),
			ProcessName: procName(proc),
			DetectedAt:  app.FirstSeenAt,
		}
		if proc != nil {
			det.WorkingDir = proc.WorkingDir
		}
		if err := m.hist.RecordDetection(ctx, det); err != nil {
			m.logger.Warn("history write failed", zap.Error(err))
		}
	}

	res := m.waiter.Wait(ctx, app.URL)
	if ctx.Err() != nil {
		return
	}
	degraded := !res.Ready
	if degraded {
		m.logger.Warn("app not ready before timeout, capturing degraded",
			zap.Int("port", app.Port),
			zap.Int("first_status", res.FirstStatusCode),
			zap.Duration("waited", res.Elapsed))
	}

	if !m.setState(app, StateCapturing) {
		return
	}
	m.runCapture(ctx, app, degraded)

	m.mu.Lock()
	captured := app.State == StateCaptured
	dir := ""
	if app.Process != nil {
		dir = app.Process.WorkingDir
	}
	m.mu.Unlock()
	if captured && dir != "" {
		m.startWatcher(ctx, app, dir)
	}
}

// runCapture performs one capture session and flips the app's state
// based on the outcome.
func (m *Monitor) runCapture(ctx context.Context, app *TrackedApp, degraded bool) {
	p := m.plans.For(app.Framework)
	target := capture.App{
		Port:      app.Port,
		URL:       app.URL,
		Framework: app.Framework,
	}
	if app.Process != nil {
		target.ProcessName = app.Process.Name
		target.WorkingDir = app.Process.WorkingDir
	}

	sess, err := m.capturer.Capture(ctx, target, p, degraded)
	if sess != nil {
		m.mu.Lock()
		app.LastSession = sess
		m.mu.Unlock()
		if m.hist != nil {
			if herr := m.hist.RecordSession(ctx, sess); herr != nil {
				m.logger.Warn("history write failed", zap.Error(herr))
			}
		}
		if m.onSession != nil {
			m.onSession(sess)
		}
	}
	if err != nil {
		m.setState(app, StateFailed)
		m.logger.Error("capture failed",
			zap.Int("port", app.Port), zap.Error(err))
		return
	}
	m.setState(app, StateCaptured)
	m.logger.Info("capture complete",
		zap.Int("port", app.Port),
		zap.String("session", sess.ID),
		zap.Bool("degraded", sess.Degraded))
}

// startWatcher begins watching the app's source tree and recaptures on
// change. Watch failures only disable the feature for this app.
func (m *Monitor) startWatcher(ctx context.Context, app *TrackedApp, dir string) {
	if m.newWatcher == nil {
		return
	}
	p := m.plans.For(app.Framework)
	w, err := m.newWatcher(dir, p.WatchFiles, p.IgnorePatterns, func(paths []string) {
		m.recapture(ctx, app, paths)
	})
	if err != nil {
		m.logger.Warn("change watch unavailable",
			zap.Int("port", app.Port), zap.Error(err))
		return
	}
	if err := w.Start(ctx); err != nil {
		m.logger.Warn("change watch failed to start",
			zap.Int("port", app.Port), zap.Error(err))
		return
	}

	m.mu.Lock()
	if app.retired {
		m.mu.Unlock()
		w.Stop()
		return
	}
	app.watcher = w
	m.mu.Unlock()
	m.logger.Info("watching for source changes",
		zap.Int("port", app.Port), zap.String("dir", dir))
}

// recapture reruns the capture stage after a source change. The same
// no-duplicate-work rule applies: a port already capturing is skipped.
func (m *Monitor) recapture(ctx context.Context, app *TrackedApp, paths []string) {
	m.mu.Lock()
	if app.retired || app.inFlight || app.State == StateCapturing {
		m.mu.Unlock()
		return
	}
	app.inFlight = true
	app.State = StateCapturing
	m.mu.Unlock()

	m.logger.Info("recapturing after source change",
		zap.Int("port", app.Port), zap.Int("changed_files", len(paths)))

	started := m.grp.TryGo(func() error {
		defer func() {
			m.mu.Lock()
			app.inFlight = false
			m.mu.Unlock()
		}()
		res := m.waiter.Wait(ctx, app.URL)
		if ctx.Err() != nil {
			return nil
		}
		m.runCapture(ctx, app, !res.Ready)
		return nil
	})
	if !started {
		m.mu.Lock()
		app.inFlight = false
		app.State = StateCaptured
		m.mu.Unlock()
	}
}

// setState flips the app's state unless it has been retired. Returns
// false when the app is gone and the pipeline should stop.
func (m *Monitor) setState(app *TrackedApp, s State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if app.retired {
		return false
	}
	app.State = s
	return true
}

func (m *Monitor) stopWatchers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, app := range m.apps {
		if app.watcher != nil {
			app.watcher.Stop()
			app.watcher = nil
		}
	}
}

// Apps returns a snapshot of the tracked apps sorted by port.
func (m *Monitor) Apps() []TrackedApp {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TrackedApp, 0, len(m.apps))
	for _, app := range m.apps {
		cp := *app
		cp.watcher = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

func procName(p *procinfo.ProcessInfo) string {
	if p == nil {
		return ""
	}
	return p.Name
}
