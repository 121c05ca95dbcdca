// Package readiness polls a URL until the application behind it answers
// without a server error, or a deadline passes. The waiter never returns
// an error: readiness is a result, not an exception.
package readiness

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Result reports the outcome of a readiness wait. A 4xx response still
// counts as ready: the server is up, even if the route is wrong.
type Result struct {
	Ready           bool
	FirstStatusCode int // 0 when no HTTP response was ever received
	Elapsed         time.Duration
}

// Waiter polls candidate URLs.
type Waiter struct {
	client       *http.Client
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithTimeout sets the overall deadline (default 30s).
func WithTimeout(d time.Duration) Option {
	return func(w *Waiter) { w.timeout = d }
}

// WithPollInterval sets the delay between probes (default 500ms).
func WithPollInterval(d time.Duration) Option {
	return func(w *Waiter) { w.pollInterval = d }
}

// WithClient substitutes the HTTP client.
func WithClient(c *http.Client) Option {
	return func(w *Waiter) { w.client = c }
}

// New creates a Waiter. logger may be nil.
func New(logger *zap.Logger, opts ...Option) *Waiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Waiter{
		client:       &http.Client{Timeout: time.Second},
		timeout:      30 * time.Second,
		pollInterval: 500 * time.Millisecond,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait polls url until it returns a status below 500, the configured
// timeout elapses, or ctx is cancelled. Connection errors are treated as
// "not yet ready" and swallowed; an explicit 5xx keeps the poll going
// but records the status code.
func (w *Waiter) Wait(ctx context.Context, url string) Result {
	start := time.Now()
	deadline := start.Add(w.timeout)
	firstStatus := 0

	for {
		if code, ok := w.probe(ctx, url); ok {
			if firstStatus == 0 {
				firstStatus = code
			}
			if code < http.StatusInternalServerError {
				elapsed := time.Since(start)
				w.logger.Debug("app ready",
					zap.String("url", url),
					zap.Int("status", code),
					zap.Duration("elapsed", elapsed))
				return Result{Ready: true, FirstStatusCode: firstStatus, Elapsed: elapsed}
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := w.pollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return Result{Ready: false, FirstStatusCode: firstStatus, Elapsed: time.Since(start)}
		case <-time.After(wait):
		}
	}

	elapsed := time.Since(start)
	w.logger.Warn("readiness wait timed out",
		zap.String("url", url),
		zap.Duration("elapsed", elapsed))
	return Result{Ready: false, FirstStatusCode: firstStatus, Elapsed: elapsed}
}

// probe performs one GET. ok is false on transport errors.
func (w *Waiter) probe(ctx context.Context, url string) (int, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, false
	}
	_ = resp.Body.Close()
	return resp.StatusCode, true
}
