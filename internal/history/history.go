// Package history persists detection and capture-session records to a
// local SQLite database, so past monitor activity survives restarts and
// can be listed from the CLI.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"appshot/internal/capture"
)

const schema = `
CREATE TABLE IF NOT EXISTS detections (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	port        INTEGER NOT NULL,
	url         TEXT NOT NULL,
	framework   TEXT NOT NULL,
	process     TEXT NOT NULL DEFAULT '',
	working_dir TEXT NOT NULL DEFAULT '',
	detected_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	port       INTEGER NOT NULL,
	framework  TEXT NOT NULL,
	success    INTEGER NOT NULL,
	degraded   INTEGER NOT NULL,
	output_dir TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_detections_port ON detections(port);
CREATE INDEX IF NOT EXISTS idx_sessions_port ON sessions(port);
`

// Detection is one observed app activation.
type Detection struct {
	Port        int
	URL         string
	Framework   string
	ProcessName string
	WorkingDir  string
	DetectedAt  time.Time
}

// SessionRecord summarizes one persisted capture session.
type SessionRecord struct {
	SessionID string
	Port      int
	Framework string
	Success   bool
	Degraded  bool
	OutputDir string
	CreatedAt time.Time
}

// Store is the SQLite-backed history store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates (if needed) and opens the history database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}

	logger.Debug("history store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordDetection appends one detection row.
func (s *Store) RecordDetection(ctx context.Context, d Detection) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO detections (port, url, framework, process, working_dir, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.Port, d.URL, d.Framework, d.ProcessName, d.WorkingDir, d.DetectedAt.UTC())
	if err != nil {
		return fmt.Errorf("record detection: %w", err)
	}
	return nil
}

// RecordSession stores a summary row for a finished capture session.
func (s *Store) RecordSession(ctx context.Context, sess *capture.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (session_id, port, framework, success, degraded, output_dir, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Port, string(sess.Framework), boolInt(sess.Success), boolInt(sess.Degraded),
		sess.OutputDir, sess.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// RecentDetections lists the newest detections, most recent first.
func (s *Store) RecentDetections(ctx context.Context, limit int) ([]Detection, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT port, url, framework, process, working_dir, detected_at
		 FROM detections ORDER BY detected_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var out []Detection
	for rows.Next() {
		var d Detection
		if err := rows.Scan(&d.Port, &d.URL, &d.Framework, &d.ProcessName, &d.WorkingDir, &d.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecentSessions lists the newest capture sessions, most recent first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, port, framework, success, degraded, output_dir, created_at
		 FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec               SessionRecord
			success, degraded int
		)
		if err := rows.Scan(&rec.SessionID, &rec.Port, &rec.Framework, &success, &degraded, &rec.OutputDir, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.Success = success != 0
		rec.Degraded = degraded != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
