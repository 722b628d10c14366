package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/King-Chau/mozi/internal/cron"
)

// RunLogStore keeps durable cron run history in a SQLite database. The
// scheduler's in-memory ring answers recent queries; this store survives
// restarts and holds the long tail.
type RunLogStore struct {
	db *sql.DB
}

// NewRunLogStore opens (or creates) the run-history database at the given path.
func NewRunLogStore(dbPath string) (*RunLogStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &RunLogStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("run log store opened", "path", dbPath)
	return s, nil
}

func (s *RunLogStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cron_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			job_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cron_runs_job_ts ON cron_runs(job_id, ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_cron_runs_ts ON cron_runs(ts DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:30], err)
		}
	}
	return nil
}

// Append records one run.
func (s *RunLogStore) Append(ctx context.Context, entry cron.RunLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cron_runs (ts, job_id, status, error, summary, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Ts, entry.JobID, entry.Status, entry.Error, entry.Summary, entry.DurationMs)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns the newest runs first, for one job or all jobs when jobID
// is empty.
func (s *RunLogStore) Recent(ctx context.Context, jobID string, limit int) ([]cron.RunLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows *sql.Rows
	var err error
	if jobID == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT ts, job_id, status, error, summary, duration_ms
			 FROM cron_runs ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT ts, job_id, status, error, summary, duration_ms
			 FROM cron_runs WHERE job_id = ? ORDER BY ts DESC, id DESC LIMIT ?`, jobID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []cron.RunLogEntry
	for rows.Next() {
		var e cron.RunLogEntry
		if err := rows.Scan(&e.Ts, &e.JobID, &e.Status, &e.Error, &e.Summary, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes runs older than cutoffMs, returning the number removed.
func (s *RunLogStore) Prune(ctx context.Context, cutoffMs int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cron_runs WHERE ts < ?`, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the database handle.
func (s *RunLogStore) Close() error {
	return s.db.Close()
}
