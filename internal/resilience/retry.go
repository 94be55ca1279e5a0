package resilience

import (
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
)

// RetryConfig bounds the Store's deadlock retry loop.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// DefaultRetryConfig matches the deadlock policy: 3 attempts, 100ms
// initial backoff, doubled each attempt.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond}
}

// WithDeadlockRetry runs fn up to cfg.MaxAttempts times, retrying only
// while shouldRetry(err) is true, with randomized exponential backoff
// between attempts. The last error is returned if the budget is
// exhausted.
func WithDeadlockRetry(cfg RetryConfig, shouldRetry func(error) bool, logger *log.Entry, fn func(attempt int) error) error {
	if logger == nil {
		logger = log.New().WithField("component", "deadlock-retry")
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		jitter := time.Duration(rand.Int63n(int64(delay) + 1))
		logger.WithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay + jitter,
			"error":   err,
		}).Warn("retrying after transient failure")
		time.Sleep(delay + jitter)
		delay *= 2
	}

	return lastErr
}
