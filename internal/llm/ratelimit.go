package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a provider-wide request limiter. A single instance is
// created by the caller and handed to every client that must share the
// budget; clients never create one implicitly. A nil *RateLimiter never
// blocks.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows rps requests per second with the given burst.
// A non-positive rps returns nil (unlimited).
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/rps)), burst),
	}
}

// Wait blocks until a request may proceed or ctx is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed now without waiting.
func (l *RateLimiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}
