package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/King-Chau/mozi/internal/cron"
)

func openTestStore(t *testing.T) *RunLogStore {
	t.Helper()
	s, err := NewRunLogStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewRunLogStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLogAppendAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entries := []cron.RunLogEntry{
		{Ts: 1000, JobID: "a", Status: cron.StatusOK, Summary: "first"},
		{Ts: 2000, JobID: "b", Status: cron.StatusError, Error: "boom"},
		{Ts: 3000, JobID: "a", Status: cron.StatusOK, Summary: "second", DurationMs: 42},
	}
	for _, e := range entries {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := s.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Ts != 3000 || all[2].Ts != 1000 {
		t.Errorf("expected newest first, got %+v", all)
	}

	forA, err := s.Recent(ctx, "a", 10)
	if err != nil {
		t.Fatalf("Recent(a): %v", err)
	}
	if len(forA) != 2 {
		t.Fatalf("expected 2 entries for job a, got %d", len(forA))
	}
	if forA[0].Summary != "second" || forA[0].DurationMs != 42 {
		t.Errorf("entry fields lost: %+v", forA[0])
	}
}

func TestRunLogRecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := int64(0); i < 10; i++ {
		if err := s.Append(ctx, cron.RunLogEntry{Ts: i * 100, JobID: "j", Status: cron.StatusOK}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := s.Recent(ctx, "j", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected limit 3, got %d", len(got))
	}
	if got[0].Ts != 900 {
		t.Errorf("expected newest first, got ts=%d", got[0].Ts)
	}
}

func TestRunLogPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		if err := s.Append(ctx, cron.RunLogEntry{Ts: i * 1000, JobID: "j", Status: cron.StatusOK}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	n, err := s.Prune(ctx, 3000)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 pruned, got %d", n)
	}
	left, err := s.Recent(ctx, "j", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 2 {
		t.Errorf("expected 2 remaining, got %d", len(left))
	}
}
