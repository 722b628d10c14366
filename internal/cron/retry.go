package cron

import (
	"math/rand/v2"
	"time"
)

// RetryConfig controls exponential backoff retry for failed executions.
// MaxRetries 0 disables retrying, which is the default for agent turns:
// one realized attempt per fire.
type RetryConfig struct {
	MaxRetries int           // additional attempts after the first failure
	BaseDelay  time.Duration // initial backoff delay
	MaxDelay   time.Duration // backoff ceiling
}

// DefaultRetryConfig returns the no-retry default.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 0, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

// ExecuteWithRetry runs fn, retrying error-status results with exponential
// backoff plus jitter. Skipped and ok results return immediately. The whole
// sequence counts as one realized attempt from the scheduler's perspective.
func ExecuteWithRetry(fn func() ExecResult, cfg RetryConfig) (result ExecResult, attempts int) {
	for attempt := 0; ; attempt++ {
		result = fn()
		if result.Status != StatusError || attempt >= cfg.MaxRetries {
			return result, attempt + 1
		}
		time.Sleep(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt))
	}
}

// backoffWithJitter computes min(base * 2^attempt, max) ± 25%.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max {
		delay = max
	}

	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}

	return delay
}
