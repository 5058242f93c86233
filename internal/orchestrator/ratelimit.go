package orchestrator

import (
	"context"
	"sync"
	"time"
)

// tokenBucket is a simple token bucket rate limiter, adapted from the
// teacher's web-search retry tool for per-stage-worker throttling (spec §5
// "optional token-bucket rate limiter").
type tokenBucket struct {
	capacity   int
	tokens     int
	refillAt   time.Time
	refillRate time.Duration
	mu         sync.Mutex
}

func newTokenBucket(capacity int, refillRate time.Duration) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillAt:   time.Now(),
		refillRate: refillRate,
	}
}

func (tb *tokenBucket) takeToken() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	if now.After(tb.refillAt) {
		elapsed := now.Sub(tb.refillAt)
		tokensToAdd := int(elapsed / tb.refillRate)
		if tokensToAdd > 0 {
			tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
			tb.refillAt = tb.refillAt.Add(time.Duration(tokensToAdd) * tb.refillRate)
		}
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *tokenBucket) waitForToken(ctx context.Context) error {
	for {
		if tb.takeToken() {
			return nil
		}

		tb.mu.Lock()
		waitTime := time.Until(tb.refillAt)
		tb.mu.Unlock()
		if waitTime <= 0 {
			waitTime = tb.refillRate
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// RateLimiter is satisfied by a noop limiter or a tokenBucket, letting
// workers skip throttling entirely when unconfigured.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

type noopLimiter struct{}

func (noopLimiter) Wait(context.Context) error { return nil }

type bucketLimiter struct{ tb *tokenBucket }

func (b bucketLimiter) Wait(ctx context.Context) error { return b.tb.waitForToken(ctx) }

// NewRateLimiter builds a RateLimiter from a {max, duration} pair; a
// non-positive max disables limiting.
func NewRateLimiter(max int, duration time.Duration) RateLimiter {
	if max <= 0 || duration <= 0 {
		return noopLimiter{}
	}
	return bucketLimiter{tb: newTokenBucket(max, duration/time.Duration(max))}
}
