// Package resilience provides bounded-retry and circuit-breaker primitives
// used around the pipeline's external collaborators: the decoder's session
// allocation path and the note-generation LLM.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"time"
)

// RetryConfig tunes [Retry]. Zero-valued fields take defaults.
type RetryConfig struct {
	// Attempts is the number of retries after the initial call. Default: 2.
	Attempts int

	// Backoff is the delay before the first retry; it doubles per attempt.
	// Default: 100 ms.
	Backoff time.Duration

	// RetryOn decides whether an error is transient and worth retrying.
	// When nil, every error is retried.
	RetryOn func(error) bool
}

// Retry calls fn, retrying transient failures with exponential backoff.
// It returns fn's first success, the first non-transient error, or the last
// transient error once the attempt budget is exhausted. Cancellation of ctx
// during a backoff wait aborts with ctx.Err().
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}

	var zero T
	delay := cfg.Backoff
	var lastErr error

	for attempt := 0; attempt <= cfg.Attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			}
			delay *= 2
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if cfg.RetryOn != nil && !cfg.RetryOn(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}
