package cron

import "errors"

var (
	// ErrInvalidSchedule covers malformed cron expressions, missing or
	// non-positive intervals, "at" instants already in the past, and
	// missing kind-dependent fields.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrInvalidPayload covers agentTurn deliveries without channel/to,
	// unknown channel ids, and out-of-range timeouts.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrJobNotFound is returned for mutations or runs of an unknown id.
	ErrJobNotFound = errors.New("job not found")

	// ErrAgentFailed marks an agent-turn callback that reported failure.
	ErrAgentFailed = errors.New("agent turn failed")
)
