package cron

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// NextRunAtMs computes the next fire instant for a schedule, or nil when the
// schedule can never fire again. lastRunAtMs is nil for a job that has never
// run. The result is always strictly greater than now.
//
// Rules:
//   - at: the instant itself, only if still in the future and never run.
//   - every: lastRun + interval; if that has already elapsed, snap forward to the next
//     interval boundary after now so a paused scheduler fires once, not K times.
//   - cron: smallest matching instant strictly after max(lastRun, now),
//     evaluated in the schedule's zone (process local if absent).
func NextRunAtMs(s Schedule, lastRunAtMs *int64, nowMs int64) (*int64, error) {
	switch s.Kind {
	case ScheduleAt:
		if s.AtMs == nil {
			return nil, fmt.Errorf("%w: at schedule requires atMs", ErrInvalidSchedule)
		}
		if lastRunAtMs == nil && *s.AtMs > nowMs {
			return s.AtMs, nil
		}
		return nil, nil

	case ScheduleEvery:
		if s.EveryMs == nil || *s.EveryMs <= 0 {
			return nil, fmt.Errorf("%w: every schedule requires positive everyMs", ErrInvalidSchedule)
		}
		every := *s.EveryMs
		if lastRunAtMs == nil {
			next := nowMs + every
			return &next, nil
		}
		next := *lastRunAtMs + every
		if next <= nowMs {
			// Forward progress without a catch-up burst.
			next = nowMs + (every - ((nowMs - *lastRunAtMs) % every))
		}
		return &next, nil

	case ScheduleCron:
		if s.Expr == "" {
			return nil, fmt.Errorf("%w: cron schedule requires expr", ErrInvalidSchedule)
		}
		refMs := nowMs
		if lastRunAtMs != nil && *lastRunAtMs > refMs {
			refMs = *lastRunAtMs
		}
		ref := time.UnixMilli(refMs)
		if s.TZ != "" {
			loc, err := time.LoadLocation(s.TZ)
			if err != nil {
				return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, s.TZ)
			}
			ref = ref.In(loc)
		}
		next, err := gronx.NextTickAfter(s.Expr, ref, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		nextMs := next.UnixMilli()
		return &nextMs, nil

	default:
		return nil, fmt.Errorf("%w: unknown schedule kind %q", ErrInvalidSchedule, s.Kind)
	}
}
