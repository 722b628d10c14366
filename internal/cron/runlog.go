package cron

import (
	"context"
	"log/slog"
	"sync"
)

// runLogCap is the in-memory run history size.
const runLogCap = 200

// RunLogStore optionally persists run metadata beyond the in-memory ring.
// Summaries are capped; agent output text is never stored.
type RunLogStore interface {
	Append(ctx context.Context, entry RunLogEntry) error
	Recent(ctx context.Context, jobID string, limit int) ([]RunLogEntry, error)
	Close() error
}

// runLog is a bounded in-memory ring of recent executions with an optional
// durable backend behind it.
type runLog struct {
	mu      sync.Mutex
	entries []RunLogEntry
	store   RunLogStore
}

func (l *runLog) record(entry RunLogEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > runLogCap {
		l.entries = l.entries[len(l.entries)-runLogCap:]
	}
	store := l.store
	l.mu.Unlock()

	if store != nil {
		if err := store.Append(context.Background(), entry); err != nil {
			slog.Warn("run log persist failed", "jobId", entry.JobID, "error", err)
		}
	}
}

// recent returns up to limit entries, newest first, optionally filtered by
// job. With a durable backend attached it answers from there, so history
// outlives the process; the in-memory ring covers the store-less case.
func (l *runLog) recent(jobID string, limit int) []RunLogEntry {
	if limit <= 0 {
		limit = 20
	}

	l.mu.Lock()
	store := l.store
	l.mu.Unlock()
	if store != nil {
		entries, err := store.Recent(context.Background(), jobID, limit)
		if err == nil {
			return entries
		}
		slog.Warn("run log query failed, using in-memory ring", "error", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var result []RunLogEntry
	for i := len(l.entries) - 1; i >= 0 && len(result) < limit; i-- {
		entry := l.entries[i]
		if jobID == "" || entry.JobID == jobID {
			result = append(result, entry)
		}
	}
	return result
}
