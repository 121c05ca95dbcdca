package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appshot/internal/capture"
	"appshot/internal/classify"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDetections(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first := Detection{
		Port: 3000, URL: "http://localhost:3000", Framework: "React",
		ProcessName: "node", DetectedAt: time.Now().Add(-time.Minute),
	}
	second := Detection{
		Port: 5173, URL: "http://localhost:5173", Framework: "Vite",
		DetectedAt: time.Now(),
	}
	require.NoError(t, s.RecordDetection(ctx, first))
	require.NoError(t, s.RecordDetection(ctx, second))

	got, err := s.RecentDetections(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 5173, got[0].Port) // newest first
	assert.Equal(t, 3000, got[1].Port)
	assert.Equal(t, "node", got[1].ProcessName)
}

func TestSessions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	sess := &capture.Session{
		ID:        "3000_20250101_120000_abcd1234",
		Port:      3000,
		Framework: classify.React,
		Timestamp: time.Now(),
		Success:   true,
		OutputDir: "/tmp/webapp_3000",
	}
	require.NoError(t, s.RecordSession(ctx, sess))

	t.Run("listed", func(t *testing.T) {
		got, err := s.RecentSessions(ctx, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, sess.ID, got[0].SessionID)
		assert.True(t, got[0].Success)
		assert.False(t, got[0].Degraded)
	})

	t.Run("re-record replaces", func(t *testing.T) {
		sess.Success = false
		sess.Degraded = true
		require.NoError(t, s.RecordSession(ctx, sess))

		got, err := s.RecentSessions(ctx, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.False(t, got[0].Success)
		assert.True(t, got[0].Degraded)
	})
}

func TestRecentLimits(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordDetection(ctx, Detection{
			Port: 3000 + i, URL: "http://localhost", Framework: "Unknown",
			DetectedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := s.RecentDetections(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
