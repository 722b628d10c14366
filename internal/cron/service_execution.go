package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// runLoop polls the job set on every tick until stopped.
func (s *Service) runLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tickOnce()
		}
	}
}

// tickOnce launches one execution for every due job not already in flight.
func (s *Service) tickOnce() {
	now := s.clk.NowMs()

	s.mu.Lock()
	var due []Job
	for _, job := range s.jobs {
		if job.Enabled && job.State.NextRunAtMs != nil && *job.State.NextRunAtMs <= now {
			due = append(due, job)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		if !s.acquireLease(job.ID) {
			continue
		}
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			defer s.releaseLease(job.ID)

			ctx := context.Background()
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer s.sem.Release(1)

			s.runJob(ctx, job, false)
		}(job)
	}
}

// Run forces a job to execute now, synchronously. A job already in flight is
// not run a second time; the caller gets a skipped result and no state
// changes.
func (s *Service) Run(ctx context.Context, id string) (ExecResult, error) {
	job, ok := s.Get(id)
	if !ok {
		return ExecResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !s.acquireLease(id) {
		return ExecResult{Status: StatusSkipped, Summary: "Job is already running"}, nil
	}
	defer s.releaseLease(id)

	// Forced runs count as in-flight work so Stop waits for them too.
	s.wg.Add(1)
	defer s.wg.Done()

	return s.runJob(ctx, job, true), nil
}

// runJob executes one job and finalizes its state. Callers must hold the
// job's lease.
func (s *Service) runJob(ctx context.Context, job Job, forced bool) ExecResult {
	start := s.clk.NowMs()
	slog.Info("cron job firing", "id", job.ID, "name", job.Name, "forced", forced)

	result, attempts := ExecuteWithRetry(func() ExecResult {
		return s.executeWithRecovery(ctx, job)
	}, s.cfg.Retry)
	if attempts > 1 {
		slog.Info("cron job retried", "id", job.ID, "attempts", attempts, "status", result.Status)
	}

	now := s.clk.NowMs()
	s.finalizeRun(job.ID, now, result)

	s.log.record(RunLogEntry{
		Ts:         now,
		JobID:      job.ID,
		Status:     result.Status,
		Error:      result.Error,
		Summary:    result.Summary,
		DurationMs: now - start,
	})
	return result
}

func (s *Service) executeWithRecovery(ctx context.Context, job Job) (result ExecResult) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("cron job panicked", "id", job.ID, "panic", rec)
			result = ExecResult{Status: StatusError, Error: fmt.Sprintf("panic: %v", rec)}
		}
	}()
	return s.exec.ExecuteJob(ctx, job)
}

// finalizeRun records the execution outcome and advances the schedule. The
// job may have been removed or updated while running; a missing job is
// simply dropped.
func (s *Service) finalizeRun(id string, now int64, result ExecResult) {
	s.mu.Lock()

	idx := s.findLocked(id)
	if idx == -1 {
		s.mu.Unlock()
		return
	}
	job := &s.jobs[idx]

	lastRun := now
	job.State.LastRunAtMs = &lastRun
	job.State.RunCount++
	job.State.LastStatus = result.Status
	job.State.LastError = result.Error

	if job.Schedule.Kind == ScheduleAt && result.Status == StatusOK {
		// One-shot jobs retire after a successful run.
		job.Enabled = false
		job.State.NextRunAtMs = nil
	} else if job.Enabled {
		next, err := NextRunAtMs(job.Schedule, job.State.LastRunAtMs, now)
		if err != nil || next == nil {
			if err != nil {
				slog.Error("cron next run failed, disabling job", "id", id, "error", err)
			}
			job.Enabled = false
			job.State.NextRunAtMs = nil
		} else {
			job.State.NextRunAtMs = next
		}
	}

	// Run-state updates are not rolled back on a persist failure; the
	// execution happened either way.
	if err := s.store.Save(s.jobs); err != nil {
		slog.Warn("cron run persist failed", "id", id, "error", err)
	}

	finished := *job
	s.mu.Unlock()

	s.emit(Event{Kind: EventJobRan, Job: finished, Result: &result})
}

func (s *Service) acquireLease(id string) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Service) releaseLease(id string) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	delete(s.inFlight, id)
}
