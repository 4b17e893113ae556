// ratelimit.go implements token-bucket rate limiting for the feed API.
//
// The upstream API enforces per-category limits measured in requests per
// 10-second windows. This file provides a smooth token-bucket implementation
// that refills continuously (rather than in 10s bursts) to avoid hitting
// hard limits.
//
// Two buckets are maintained:
//   - List:   30 burst / 5 per sec — snapshot reads (notifications, activity)
//   - Action: 60 burst / 10 per sec — mark-read / mark-all-read / delete
package gateway

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous refill.
// Callers block in Wait() until a token is available or the context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were calculated
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		// Calculate wait time for next token
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// retry
		}
	}
}

// RateLimiter groups token buckets by feed API endpoint category.
// Each call must Wait() on the appropriate bucket before making the
// HTTP request.
type RateLimiter struct {
	List   *TokenBucket // GET /notifications, GET /activity — snapshot reads
	Action *TokenBucket // PATCH/DELETE user actions
}

// NewRateLimiter creates rate limiters tuned to the API's published limits.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		List:   NewTokenBucket(30, 5),
		Action: NewTokenBucket(60, 10),
	}
}
