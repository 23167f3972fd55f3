package browser

import (
	"context"
	"math/rand"
	"time"
)

// DelayFunc pauses between retry attempts. Implementations should return
// early when ctx is done.
type DelayFunc func(ctx context.Context)

// HumanDelay returns a DelayFunc sleeping a uniformly random duration in
// [min, max], the pacing the source sites expect from a human operator.
func HumanDelay(min, max time.Duration) DelayFunc {
	return func(ctx context.Context) {
		d := min
		if max > min {
			d = min + time.Duration(rand.Int63n(int64(max-min)))
		}
		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
	}
}

// NoDelay skips the pause. Tests inject it to keep retries instant.
func NoDelay(context.Context) {}

// RetryConfig bounds a low-level UI action.
type RetryConfig struct {
	// Attempts is the total tries per action, initial attempt included.
	Attempts int

	// Delay runs between attempts.
	Delay DelayFunc
}

// DefaultRetryConfig is the per-step budget: two attempts with a
// human-like pause between them.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts: 2,
		Delay:    HumanDelay(800*time.Millisecond, 1800*time.Millisecond),
	}
}

// Retry runs op up to cfg.Attempts times, pausing between attempts. It is
// the single bounded-retry wrapper every session transition reuses; a stuck
// control costs at most cfg.Attempts tries before the step fails.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.Delay
	if delay == nil {
		delay = NoDelay
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = op(); lastErr == nil {
			return nil
		}
		if attempt < attempts-1 {
			delay(ctx)
		}
	}
	return lastErr
}
