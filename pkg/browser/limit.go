package browser

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates automation calls. It is passed explicitly into the
// discovery scan and the worker loop so tests can inject a no-op; shared
// module-level limiter state is exactly what this design replaces.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewRateLimiter returns a limiter allowing one call per minInterval with
// no burst, matching the pacing the sources tolerate.
func NewRateLimiter(minInterval time.Duration) Limiter {
	return rate.NewLimiter(rate.Every(minInterval), 1)
}

// NopLimiter never waits.
type NopLimiter struct{}

func (NopLimiter) Wait(context.Context) error { return nil }
