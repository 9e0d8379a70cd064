package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum interval between outbound requests for one
// source. Sources never share a budget; build one Limiter per adapter.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a limiter that releases at most one caller per delay. The
// first call passes immediately. A non-positive delay disables pacing.
func New(delay time.Duration) *Limiter {
	if delay <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until at least the configured delay has elapsed since the
// previous release, or until ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
