package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/King-Chau/mozi/internal/channels"
)

// Timeout bounds for agent-turn payloads, in seconds.
const (
	MinTimeoutSeconds = 1
	MaxTimeoutSeconds = 600
)

// ValidateSchedule checks kind-dependent required fields. nowMs is used to
// reject single-shot instants already in the past.
func ValidateSchedule(s Schedule, nowMs int64) error {
	switch s.Kind {
	case ScheduleAt:
		if s.AtMs == nil {
			return fmt.Errorf("%w: at schedule requires atMs", ErrInvalidSchedule)
		}
		if *s.AtMs <= nowMs {
			return fmt.Errorf("%w: atMs is in the past", ErrInvalidSchedule)
		}
	case ScheduleEvery:
		if s.EveryMs == nil || *s.EveryMs <= 0 {
			return fmt.Errorf("%w: every schedule requires positive everyMs", ErrInvalidSchedule)
		}
	case ScheduleCron:
		if strings.TrimSpace(s.Expr) == "" {
			return fmt.Errorf("%w: cron schedule requires expr", ErrInvalidSchedule)
		}
		gx := gronx.New()
		if !gx.IsValid(s.Expr) {
			return fmt.Errorf("%w: bad cron expression %q", ErrInvalidSchedule, s.Expr)
		}
		if s.TZ != "" {
			if _, err := time.LoadLocation(s.TZ); err != nil {
				return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, s.TZ)
			}
		}
	default:
		return fmt.Errorf("%w: unknown schedule kind %q", ErrInvalidSchedule, s.Kind)
	}
	return nil
}

// ValidatePayload checks the payload union. For agentTurn with deliver=true,
// channel and to must both be present at creation; the channel must belong
// to the closed set (or be the "last" sentinel).
func ValidatePayload(p Payload) error {
	switch p.Kind {
	case PayloadSystemEvent:
		if strings.TrimSpace(p.Message) == "" {
			return fmt.Errorf("%w: systemEvent requires message", ErrInvalidPayload)
		}
	case PayloadAgentTurn:
		if strings.TrimSpace(p.Message) == "" {
			return fmt.Errorf("%w: agentTurn requires message", ErrInvalidPayload)
		}
		if p.TimeoutSeconds != nil {
			if *p.TimeoutSeconds < MinTimeoutSeconds || *p.TimeoutSeconds > MaxTimeoutSeconds {
				return fmt.Errorf("%w: timeoutSeconds must be in [%d, %d]",
					ErrInvalidPayload, MinTimeoutSeconds, MaxTimeoutSeconds)
			}
		}
		if p.Deliver {
			if strings.TrimSpace(p.Channel) == "" || strings.TrimSpace(p.To) == "" {
				return fmt.Errorf("%w: deliver requires channel and to", ErrInvalidPayload)
			}
		}
		if p.Channel != "" && p.Channel != channels.Last && !channels.IsKnown(p.Channel) {
			return fmt.Errorf("%w: unknown channel %q", ErrInvalidPayload, p.Channel)
		}
	default:
		return fmt.Errorf("%w: unknown payload kind %q", ErrInvalidPayload, p.Kind)
	}
	return nil
}
