// Package scanner enumerates locally listening TCP ports from a fixed
// candidate set. A scan is a bounded snapshot: every candidate is probed
// with a short dial timeout and the listening subset is returned.
package scanner

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPorts are the common dev-server ports watched when no explicit
// port list is configured.
var DefaultPorts = []int{
	3000, // React, Express
	3001, // Create React App fallback
	5000, // Flask
	5173, // Vite
	5174, // Vite fallback
	8000, // Django, python http.server
	8080, // generic
	8888, // Jupyter
	4200, // Angular
	4000, // Phoenix
	9000, // PHP
}

// Scanner probes candidate ports on the loopback interface.
type Scanner struct {
	host        string
	dialTimeout time.Duration
	logger      *zap.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithDialTimeout overrides the per-port dial timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Scanner) { s.dialTimeout = d }
}

// WithHost overrides the probed host (loopback by default).
func WithHost(host string) Option {
	return func(s *Scanner) { s.host = host }
}

// New creates a Scanner. logger may be nil.
func New(logger *zap.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scanner{
		host:        "127.0.0.1",
		dialTimeout: 250 * time.Millisecond,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns the sorted subset of candidates currently accepting TCP
// connections. Ports outside the candidate set are never reported. The
// scan never fails: a port that cannot be probed is simply not active.
func (s *Scanner) Scan(ctx context.Context, candidates []int) []int {
	if len(candidates) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		active []int
		wg     sync.WaitGroup
	)
	dialer := &net.Dialer{Timeout: s.dialTimeout}

	for _, port := range candidates {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			addr := fmt.Sprintf("%s:%d", s.host, port)
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return
			}
			_ = conn.Close()
			mu.Lock()
			active = append(active, port)
			mu.Unlock()
		}(port)
	}
	wg.Wait()

	sort.Ints(active)
	s.logger.Debug("port scan complete",
		zap.Int("candidates", len(candidates)),
		zap.Ints("active", active))
	return active
}

// Candidates merges the default port list with additions and removes
// exclusions, preserving uniqueness and sorted order.
func Candidates(additional, exclude []int) []int {
	excluded := make(map[int]bool, len(exclude))
	for _, p := range exclude {
		excluded[p] = true
	}

	seen := make(map[int]bool)
	var out []int
	for _, p := range append(append([]int{}, DefaultPorts...), additional...) {
		if p <= 0 || p > 65535 || excluded[p] || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
