package services

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces requests evenly so that at most perMinute start in any minute.
// A nil *RateLimiter never waits.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter returns nil when perMinute is not positive.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Wait reserves the next slot and blocks until it arrives or ctx is done.
// A cancelled wait gives its slot back.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r := rl.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
