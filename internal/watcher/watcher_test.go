package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type changeRecorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *changeRecorder) record(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, paths)
}

func (r *changeRecorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *changeRecorder) lastCall() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestWatcherDebouncesBurstIntoSingleCallback(t *testing.T) {
	dir := t.TempDir()
	rec := &changeRecorder{}

	w, err := New(dir, []string{"*.js"}, nil, 100*time.Millisecond, rec.record, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("x"), 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	waitFor(t, func() bool { return rec.callCount() >= 1 })
	// Burst of writes within the debounce window collapses to one call.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, rec.callCount())
	assert.Contains(t, rec.lastCall(), filepath.Join(dir, "app.js"))
}

func TestWatcherFiltersByPattern(t *testing.T) {
	dir := t.TempDir()
	rec := &changeRecorder{}

	w, err := New(dir, []string{"*.tsx"}, nil, 50*time.Millisecond, rec.record, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, rec.callCount())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "App.tsx"), []byte("x"), 0o644))
	waitFor(t, func() bool { return rec.callCount() == 1 })
}

func TestWatcherSkipsIgnoredDirectories(t *testing.T) {
	dir := t.TempDir()
	deps := filepath.Join(dir, "node_modules", "react")
	require.NoError(t, os.MkdirAll(deps, 0o755))
	rec := &changeRecorder{}

	w, err := New(dir, []string{"*.js"}, []string{"node_modules"}, 50*time.Millisecond, rec.record, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(deps, "index.js"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, rec.callCount())
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, nil, nil, 50*time.Millisecond, nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
