// Package cron provides the durable job scheduler: persisted jobs with three
// schedule kinds (at/every/cron), a wall-clock polling loop with crash
// recovery and at-least-once semantics, and a single-flight executor that
// routes agent-turn output through the delivery fabric.
package cron

import "github.com/google/uuid"

// Schedule kinds.
const (
	ScheduleAt    = "at"
	ScheduleEvery = "every"
	ScheduleCron  = "cron"
)

// Payload kinds.
const (
	PayloadSystemEvent = "systemEvent"
	PayloadAgentTurn   = "agentTurn"
)

// Run statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Schedule defines when a job fires.
type Schedule struct {
	Kind    string `json:"kind"`              // "at", "every", or "cron"
	AtMs    *int64 `json:"atMs,omitempty"`    // absolute instant (for "at")
	EveryMs *int64 `json:"everyMs,omitempty"` // interval in milliseconds (for "every")
	Expr    string `json:"expr,omitempty"`    // 5- or 6-field cron expression (for "cron")
	TZ      string `json:"tz,omitempty"`      // IANA zone; process local if absent
}

// Payload describes what a job does when triggered.
type Payload struct {
	Kind           string `json:"kind"` // "systemEvent" or "agentTurn"
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"`
	TimeoutSeconds *int   `json:"timeoutSeconds,omitempty"`
	Deliver        bool   `json:"deliver,omitempty"`
	Channel        string `json:"channel,omitempty"`
	To             string `json:"to,omitempty"`
}

// JobState tracks runtime state for a job. Only last-run metadata survives;
// agent-turn output text is never persisted.
type JobState struct {
	NextRunAtMs *int64 `json:"nextRunAtMs,omitempty"`
	LastRunAtMs *int64 `json:"lastRunAtMs,omitempty"`
	RunCount    int64  `json:"runCount"`
	LastStatus  string `json:"lastStatus,omitempty"` // "ok", "error", "skipped"
	LastError   string `json:"lastError,omitempty"`
}

// Job is the persistent root entity.
type Job struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Enabled     bool     `json:"enabled"`
	Schedule    Schedule `json:"schedule"`
	Payload     Payload  `json:"payload"`
	CreatedAtMs int64    `json:"createdAtMs"`
	UpdatedAtMs int64    `json:"updatedAtMs"`
	State       JobState `json:"state"`
}

// JobCreate is the input for Service.Add.
type JobCreate struct {
	Name     string   `json:"name"`
	Enabled  *bool    `json:"enabled,omitempty"` // default true
	Schedule Schedule `json:"schedule"`
	Payload  Payload  `json:"payload"`
}

// JobPatch holds optional fields for Service.Update. Nil fields are untouched.
type JobPatch struct {
	Name     *string   `json:"name,omitempty"`
	Enabled  *bool     `json:"enabled,omitempty"`
	Schedule *Schedule `json:"schedule,omitempty"`
	Payload  *Payload  `json:"payload,omitempty"`
}

// StoreFile is the versioned on-disk document.
type StoreFile struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// StoreVersion is the only version the core reads and writes.
const StoreVersion = 1

// JobStore durably persists the full job set. Save writes a complete,
// self-consistent snapshot; partial writes are never visible to readers.
type JobStore interface {
	Load() ([]Job, error)
	Save(jobs []Job) error
}

// Event kinds emitted by the scheduler.
const (
	EventJobAdded   = "job.added"
	EventJobUpdated = "job.updated"
	EventJobRemoved = "job.removed"
	EventJobRan     = "job.ran"
)

// Event carries the full job and, for "job.ran", the execution result.
type Event struct {
	Kind   string      `json:"kind"`
	Job    Job         `json:"job"`
	Result *ExecResult `json:"result,omitempty"`
}

// EventSink receives scheduler events. Emission is best-effort; a panicking
// sink never affects the tick.
type EventSink func(Event)

// RunLogEntry is a metadata record of one realized execution attempt.
type RunLogEntry struct {
	Ts         int64  `json:"ts"`
	JobID      string `json:"jobId"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Summary    string `json:"summary,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

func newJobID() string { return uuid.NewString() }
