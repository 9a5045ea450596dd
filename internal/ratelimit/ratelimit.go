package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// RateLimiter pauses between page advances.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// RandomDelay sleeps a uniformly random duration in [min, max] on every
// Wait. A zero range disables the pause.
type RandomDelay struct {
	minDelay time.Duration
	maxDelay time.Duration
}

func NewRandomDelay(minDelay, maxDelay time.Duration) *RandomDelay {
	return &RandomDelay{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

// None never waits.
func None() *RandomDelay {
	return NewRandomDelay(0, 0)
}

func (r *RandomDelay) Wait(ctx context.Context) error {
	delay := r.calculateDelay()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *RandomDelay) calculateDelay() time.Duration {
	if r.maxDelay <= r.minDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	return r.minDelay + time.Duration(rand.Int63n(int64(delta)+1))
}
