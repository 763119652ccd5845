package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// RetryPolicy retries an operation with bounded exponential backoff.
// Sleep is injectable so tests run without real delays.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Sleep       func(time.Duration)
}

// DefaultRetryPolicy matches the internal settlement API call contract:
// three attempts, exponential backoff capped at ten seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Delay returns the backoff before the given 1-based attempt,
// min(base * 2^(attempt-1), max).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Do runs fn up to MaxAttempts times, sleeping between attempts. The last
// error is returned when all attempts fail. Context cancellation stops
// further attempts.
func (p RetryPolicy) Do(ctx context.Context, operation string, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		log.WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"error":     lastErr,
		}).Warn("Operation failed")

		if attempt < p.MaxAttempts {
			sleep(p.Delay(attempt))
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, p.MaxAttempts, lastErr)
}
