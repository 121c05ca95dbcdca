// Package watcher observes a detected app's working directory for source
// changes and fires a debounced recapture callback. It watches only the
// file patterns the capture plan names and skips dependency/build
// directories entirely.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher wraps an fsnotify watcher with pattern filtering and a
// debounce window so one save burst triggers one recapture.
type Watcher struct {
	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	root     string
	patterns []string
	ignore   []string
	debounce time.Duration
	onChange func(paths []string)
	logger   *zap.Logger

	pending map[string]struct{}
	timer   *time.Timer
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New creates a Watcher over root. patterns are shell globs matched
// against file basenames ("*.tsx"); ignore entries are path components
// that disqualify a file ("node_modules"). onChange receives the unique
// set of changed paths after the debounce window closes.
func New(root string, patterns, ignore []string, debounce time.Duration, onChange func(paths []string), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		fsw:      fsw,
		root:     root,
		patterns: patterns,
		ignore:   ignore,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		pending:  make(map[string]struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start registers watches for root and its non-ignored subdirectories
// and begins dispatching events. Non-blocking; Stop or ctx cancellation
// ends the loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		return err
	}

	go w.loop(ctx)
	return nil
}

// Stop ends the watch loop and releases the fsnotify handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.fsw.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.fsw.Close()
}

// addTree walks the directory tree and watches every directory that is
// not ignored. fsnotify has no recursive mode, so each level is added
// explicitly.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree is skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Debug("watch add failed", zap.String("dir", path), zap.Error(err))
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}

	// New directories join the watch set so newly-created source trees
	// keep triggering recaptures.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.ignored(ev.Name) {
				_ = w.addTree(ev.Name)
			}
			return
		}
	}

	if !w.matches(ev.Name) {
		return
	}

	w.mu.Lock()
	w.pending[ev.Name] = struct{}{}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
	} else {
		w.timer.Reset(w.debounce)
	}
	w.mu.Unlock()
}

// flush fires the callback with the accumulated change set.
func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()

	if len(paths) == 0 || w.onChange == nil {
		return
	}
	w.logger.Info("source changes detected",
		zap.String("root", w.root), zap.Int("files", len(paths)))
	w.onChange(paths)
}

func (w *Watcher) ignored(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		for _, ig := range w.ignore {
			if part == ig {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) matches(path string) bool {
	if w.ignored(path) {
		return false
	}
	if len(w.patterns) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, pat := range w.patterns {
		if ok, err := filepath.Match(pat, base); err == nil && ok {
			return true
		}
	}
	return false
}
