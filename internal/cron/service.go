package cron

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/King-Chau/mozi/internal/clock"
)

// Config tunes the scheduler.
type Config struct {
	TickInterval      time.Duration // polling interval; default 1s
	MaxConcurrentRuns int64         // executor concurrency cap; default 4
	StopGrace         time.Duration // bounded wait for in-flight runs on Stop; default 30s
	Retry             RetryConfig   // backoff for error-status runs; no retries by default
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.MaxConcurrentRuns <= 0 {
		c.MaxConcurrentRuns = 4
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 30 * time.Second
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = DefaultRetryConfig().MaxDelay
	}
}

// Service owns the live job set: CRUD with persistence and next-run
// recomputation, the polling loop, due-job selection, the single-flight
// lease set, and event emission. One Service per store file.
type Service struct {
	cfg     Config
	clk     clock.Clock
	store   JobStore
	exec    *Executor
	onEvent EventSink

	mu   sync.Mutex // guards jobs; held across mutate+persist
	jobs []Job

	flightMu sync.Mutex // guards inFlight; disjoint from mu
	inFlight map[string]struct{}

	sem *semaphore.Weighted

	runMu    sync.Mutex // guards running/loaded/stopChan transitions
	running  bool
	loaded   bool
	stopChan chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup // in-flight executions

	log runLog
}

// NewService creates a scheduler over the given store. exec must not be nil;
// clk defaults to the system clock; onEvent may be nil.
func NewService(cfg Config, store JobStore, exec *Executor, clk clock.Clock, onEvent EventSink) *Service {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Service{
		cfg:      cfg,
		clk:      clk,
		store:    store,
		exec:     exec,
		onEvent:  onEvent,
		inFlight: make(map[string]struct{}),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentRuns),
	}
}

// SetRunLogStore attaches a durable run-history backend. Call before Start.
func (s *Service) SetRunLogStore(store RunLogStore) {
	s.log.store = store
}

// SetEventSink installs the event sink. Call before Start.
func (s *Service) SetEventSink(sink EventSink) {
	s.onEvent = sink
}

// Load reads the persisted job set and recomputes stale next-run instants.
// After a restart of arbitrary duration each periodic job fires at most once
// soon, never as a backlog burst. Idempotent; Start calls it implicitly.
func (s *Service) Load() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.loadLocked()
}

func (s *Service) loadLocked() error {
	if s.loaded {
		return nil
	}

	jobs, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("cron load: %w", err)
	}

	s.mu.Lock()
	s.jobs = jobs
	now := s.clk.NowMs()
	mutated := false
	for i := range s.jobs {
		job := &s.jobs[i]
		if !job.Enabled {
			if job.State.NextRunAtMs != nil {
				job.State.NextRunAtMs = nil
				mutated = true
			}
			continue
		}
		if job.State.NextRunAtMs == nil || *job.State.NextRunAtMs < now {
			next, err := NextRunAtMs(job.Schedule, job.State.LastRunAtMs, now)
			if err != nil {
				slog.Error("cron recovery: next run failed", "id", job.ID, "error", err)
				next = nil
			}
			job.State.NextRunAtMs = next
			if next == nil {
				job.Enabled = false
			}
			mutated = true
		}
	}
	if mutated {
		if err := s.store.Save(s.jobs); err != nil {
			slog.Warn("cron recovery: persist failed", "error", err)
		}
	}
	s.mu.Unlock()

	s.loaded = true
	return nil
}

// Start loads the job set (if not already loaded) and begins the polling
// loop.
func (s *Service) Start() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}
	if err := s.loadLocked(); err != nil {
		return err
	}

	s.mu.Lock()
	jobCount := len(s.jobs)
	s.mu.Unlock()

	s.stopChan = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.running = true
	go s.runLoop(s.stopChan, s.loopDone)

	slog.Info("cron service started", "jobs", jobCount, "tickInterval", s.cfg.TickInterval)
	return nil
}

// Stop cancels the tick, waits for in-flight executions within the grace
// window, and persists a final snapshot.
func (s *Service) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	loopDone := s.loopDone
	s.runMu.Unlock()

	<-loopDone

	if !waitWithTimeout(&s.wg, s.cfg.StopGrace) {
		slog.Warn("cron stop: grace expired with executions still in flight")
	}

	s.mu.Lock()
	if err := s.store.Save(s.jobs); err != nil {
		slog.Warn("cron stop: final persist failed", "error", err)
	}
	s.mu.Unlock()

	slog.Info("cron service stopped")
}

// Add creates and persists a new job, computing its first fire instant.
func (s *Service) Add(input JobCreate) (Job, error) {
	now := s.clk.NowMs()
	if err := ValidateSchedule(input.Schedule, now); err != nil {
		return Job{}, err
	}
	if err := ValidatePayload(input.Payload); err != nil {
		return Job{}, err
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	job := Job{
		ID:          newJobID(),
		Name:        strings.TrimSpace(input.Name),
		Enabled:     enabled,
		Schedule:    input.Schedule,
		Payload:     input.Payload,
		CreatedAtMs: now,
		UpdatedAtMs: now,
	}
	if enabled {
		next, err := NextRunAtMs(job.Schedule, nil, now)
		if err != nil {
			return Job{}, err
		}
		job.State.NextRunAtMs = next
	}

	s.mu.Lock()
	err := s.mutateLocked(func() {
		s.jobs = append(s.jobs, job)
	})
	s.mu.Unlock()
	if err != nil {
		return Job{}, err
	}

	slog.Info("cron job added", "id", job.ID, "name", job.Name, "kind", job.Schedule.Kind)
	s.emit(Event{Kind: EventJobAdded, Job: job})
	return job, nil
}

// Remove deletes a job by id. Returns false when the id is unknown.
func (s *Service) Remove(id string) (bool, error) {
	s.mu.Lock()
	idx := s.findLocked(id)
	if idx == -1 {
		s.mu.Unlock()
		return false, nil
	}
	removed := s.jobs[idx]
	err := s.mutateLocked(func() {
		s.jobs = append(s.jobs[:idx], s.jobs[idx+1:]...)
	})
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	slog.Info("cron job removed", "id", id)
	s.emit(Event{Kind: EventJobRemoved, Job: removed})
	return true, nil
}

// Update applies a patch, recomputing the next fire instant. A running
// execution completes against its old snapshot; the new schedule takes
// effect from now.
func (s *Service) Update(id string, patch JobPatch) (*Job, error) {
	now := s.clk.NowMs()
	if patch.Schedule != nil {
		if err := ValidateSchedule(*patch.Schedule, now); err != nil {
			return nil, err
		}
	}
	if patch.Payload != nil {
		if err := ValidatePayload(*patch.Payload); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	idx := s.findLocked(id)
	if idx == -1 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	updated := s.jobs[idx]
	if patch.Name != nil {
		updated.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Enabled != nil {
		updated.Enabled = *patch.Enabled
	}
	if patch.Schedule != nil {
		updated.Schedule = *patch.Schedule
		// A fresh schedule starts a fresh fire sequence.
		updated.State.LastRunAtMs = nil
	}
	if patch.Payload != nil {
		updated.Payload = *patch.Payload
	}
	updated.UpdatedAtMs = now

	if updated.Enabled {
		next, err := NextRunAtMs(updated.Schedule, updated.State.LastRunAtMs, now)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		updated.State.NextRunAtMs = next
	} else {
		updated.State.NextRunAtMs = nil
	}

	err := s.mutateLocked(func() {
		s.jobs[idx] = updated
	})
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	slog.Info("cron job updated", "id", id)
	s.emit(Event{Kind: EventJobUpdated, Job: updated})
	result := updated
	return &result, nil
}

// List returns jobs, optionally including disabled ones.
func (s *Service) List(includeDisabled bool) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Job
	for _, job := range s.jobs {
		if includeDisabled || job.Enabled {
			result = append(result, job)
		}
	}
	return result
}

// Get returns a copy of a job by id.
func (s *Service) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLocked(id)
	if idx == -1 {
		return Job{}, false
	}
	return s.jobs[idx], true
}

// RunLog returns recent run records (all jobs if jobID is empty).
func (s *Service) RunLog(jobID string, limit int) []RunLogEntry {
	return s.log.recent(jobID, limit)
}

// Status reports scheduler health: running flag, job count, next wake instant.
func (s *Service) Status() map[string]any {
	s.runMu.Lock()
	running := s.running
	s.runMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var nextWake *int64
	for _, job := range s.jobs {
		if job.Enabled && job.State.NextRunAtMs != nil {
			if nextWake == nil || *job.State.NextRunAtMs < *nextWake {
				v := *job.State.NextRunAtMs
				nextWake = &v
			}
		}
	}
	return map[string]any{
		"running":      running,
		"jobs":         len(s.jobs),
		"nextWakeAtMs": nextWake,
	}
}

// mutateLocked applies fn to the job set and persists the result. On a
// persistence failure the in-memory snapshot is rolled back and the mutation
// fails; callers must hold s.mu.
func (s *Service) mutateLocked(fn func()) error {
	snapshot := make([]Job, len(s.jobs))
	copy(snapshot, s.jobs)

	fn()
	if err := s.store.Save(s.jobs); err != nil {
		s.jobs = snapshot
		return fmt.Errorf("persist jobs: %w", err)
	}
	return nil
}

func (s *Service) findLocked(id string) int {
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			return i
		}
	}
	return -1
}

// emit delivers an event to the sink; a panicking handler never affects
// the caller. Never call with s.mu held: sinks may read back through the
// service API.
func (s *Service) emit(evt Event) {
	if s.onEvent == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("event sink panicked", "kind", evt.Kind, "panic", rec)
		}
	}()
	s.onEvent(evt)
}

// waitWithTimeout waits for wg up to d; reports whether the wait completed.
func waitWithTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
