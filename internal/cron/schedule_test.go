package cron

import (
	"errors"
	"testing"
	"time"
)

func msPtr(v int64) *int64 { return &v }

func TestNextRunAtNeverRun(t *testing.T) {
	at := int64(5_000_000)
	next, err := NextRunAtMs(Schedule{Kind: ScheduleAt, AtMs: &at}, nil, 1_000_000)
	if err != nil {
		t.Fatalf("NextRunAtMs: %v", err)
	}
	if next == nil || *next != at {
		t.Errorf("expected %d, got %v", at, next)
	}
}

func TestNextRunAtElapsedOrAlreadyRun(t *testing.T) {
	at := int64(5_000_000)

	// already elapsed
	next, err := NextRunAtMs(Schedule{Kind: ScheduleAt, AtMs: &at}, nil, 6_000_000)
	if err != nil {
		t.Fatalf("NextRunAtMs: %v", err)
	}
	if next != nil {
		t.Errorf("elapsed at-schedule must not fire again, got %d", *next)
	}

	// already run
	next, err = NextRunAtMs(Schedule{Kind: ScheduleAt, AtMs: &at}, msPtr(4_000_000), 4_500_000)
	if err != nil {
		t.Fatalf("NextRunAtMs: %v", err)
	}
	if next != nil {
		t.Errorf("executed at-schedule must not fire again, got %d", *next)
	}
}

func TestNextRunEveryFirstFire(t *testing.T) {
	next, err := NextRunAtMs(Schedule{Kind: ScheduleEvery, EveryMs: msPtr(60_000)}, nil, 1_000_000)
	if err != nil {
		t.Fatalf("NextRunAtMs: %v", err)
	}
	if next == nil || *next != 1_060_000 {
		t.Errorf("first fire should be now+interval, got %v", next)
	}
}

func TestNextRunEveryOnSchedule(t *testing.T) {
	next, err := NextRunAtMs(Schedule{Kind: ScheduleEvery, EveryMs: msPtr(60_000)}, msPtr(1_000_000), 1_010_000)
	if err != nil {
		t.Fatalf("NextRunAtMs: %v", err)
	}
	if next == nil || *next != 1_060_000 {
		t.Errorf("expected lastRun+interval, got %v", next)
	}
}

func TestNextRunEveryForwardProgress(t *testing.T) {
	// Scheduler paused past several intervals: fire once at the next
	// boundary after now, never K times.
	every := int64(60_000)
	lastRun := int64(1_000_000)
	now := int64(1_250_000)

	next, err := NextRunAtMs(Schedule{Kind: ScheduleEvery, EveryMs: &every}, &lastRun, now)
	if err != nil {
		t.Fatalf("NextRunAtMs: %v", err)
	}
	if next == nil {
		t.Fatal("expected a next fire")
	}
	if *next <= now {
		t.Errorf("next fire %d must be strictly after now %d", *next, now)
	}
	if *next != 1_300_000 {
		t.Errorf("expected snap to boundary 1300000, got %d", *next)
	}
	if (*next-lastRun)%every != 0 {
		t.Errorf("next fire must stay on the interval grid, got %d", *next)
	}
}

func TestNextRunCronTimezone(t *testing.T) {
	// 09:00 in Shanghai is 01:00 UTC.
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	next, err := NextRunAtMs(Schedule{Kind: ScheduleCron, Expr: "0 9 * * *", TZ: "Asia/Shanghai"}, nil, now)
	if err != nil {
		t.Fatalf("NextRunAtMs: %v", err)
	}
	want := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC).UnixMilli()
	if next == nil || *next != want {
		t.Errorf("expected %d (2024-01-01T01:00:00Z), got %v", want, next)
	}
}

func TestNextRunCronStrictlyAfterLastRun(t *testing.T) {
	// lastRun sits exactly on a matching instant; the next fire must be
	// the following one.
	lastRun := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC).UnixMilli()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC).UnixMilli()

	next, err := NextRunAtMs(Schedule{Kind: ScheduleCron, Expr: "0 9 * * *", TZ: "UTC"}, &lastRun, now)
	if err != nil {
		t.Fatalf("NextRunAtMs: %v", err)
	}
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC).UnixMilli()
	if next == nil || *next != want {
		t.Errorf("expected %d, got %v", want, next)
	}
}

func TestNextRunRejectsBadSchedules(t *testing.T) {
	cases := []Schedule{
		{Kind: ScheduleAt},
		{Kind: ScheduleEvery},
		{Kind: ScheduleEvery, EveryMs: msPtr(0)},
		{Kind: ScheduleEvery, EveryMs: msPtr(-5)},
		{Kind: ScheduleCron},
		{Kind: ScheduleCron, Expr: "not a cron"},
		{Kind: ScheduleCron, Expr: "0 9 * * *", TZ: "Not/AZone"},
		{Kind: "hourly"},
	}
	for _, s := range cases {
		if _, err := NextRunAtMs(s, nil, 1_000_000); !errors.Is(err, ErrInvalidSchedule) {
			t.Errorf("schedule %+v: expected ErrInvalidSchedule, got %v", s, err)
		}
	}
}
