// Package runlog persists job run summaries to a local sqlite file so run
// history survives restarts. It subscribes to the event bus rather than
// being called by jobs directly; a broken run log never fails a run.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"taskpilot/internal/eventbus"
	"taskpilot/internal/jobs"
	"taskpilot/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id     TEXT    NOT NULL,
	started    TEXT    NOT NULL,
	duration_ms INTEGER NOT NULL,
	processed  INTEGER NOT NULL,
	err        TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_job_started ON runs(job_id, started);
`

// Config controls the run log store.
type Config struct {
	Path        string
	BusyTimeout time.Duration
	// Retention caps how long rows are kept. Default 30 days.
	Retention time.Duration
}

// Entry is one persisted run row.
type Entry struct {
	ID        int64
	JobID     string
	Started   time.Time
	Duration  time.Duration
	Processed int
	Error     string
}

type Store struct {
	db        *sql.DB
	log       logx.Logger
	retention time.Duration

	opCount    atomic.Uint64
	pruneEvery uint64
}

// Open creates or opens the sqlite file and applies the schema.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("run log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec("PRAGMA busy_timeout = " + strconv.FormatInt(cfg.BusyTimeout.Milliseconds(), 10))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Store{db: db, log: log, retention: retention, pruneEvery: 200}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one run summary row.
func (s *Store) Record(ctx context.Context, sum jobs.Summary) error {
	if s == nil || s.db == nil {
		return nil
	}
	errCol := any(nil)
	if sum.Error != "" {
		errCol = sum.Error
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(job_id, started, duration_ms, processed, err) VALUES(?,?,?,?,?)`,
		sum.JobID, sum.Started.UTC().Format(time.RFC3339Nano),
		sum.Duration.Milliseconds(), sum.Processed, errCol,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if perr := s.prune(pctx); perr != nil {
			s.log.Warn("run log prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

// Recent returns the newest rows for a job, newest first. An empty jobID
// matches every job.
func (s *Store) Recent(ctx context.Context, jobID string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, job_id, started, duration_ms, processed, COALESCE(err, '') FROM runs`
	args := []any{}
	if jobID != "" {
		q += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var started string
		var durMS int64
		if err := rows.Scan(&e.ID, &e.JobID, &started, &durMS, &e.Processed, &e.Error); err != nil {
			return nil, err
		}
		e.Started, _ = time.Parse(time.RFC3339Nano, started)
		e.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) prune(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention).UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started < ?`, cutoff)
	return err
}

// Listen consumes "job.summary" events from the bus until ctx is done.
// It blocks; run it in its own goroutine.
func (s *Store) Listen(ctx context.Context, bus eventbus.Bus) {
	if s == nil || bus == nil {
		return
	}
	ch, unsub := bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type != "job.summary" {
				continue
			}
			sum, ok := ev.Data.(jobs.Summary)
			if !ok {
				continue
			}
			if err := s.Record(ctx, sum); err != nil {
				s.log.Warn("record run failed",
					logx.String("job", sum.JobID), logx.Err(err))
			}
		}
	}
}
