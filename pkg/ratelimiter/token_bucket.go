// Kunhua Huang 2026

package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// TokenBucketLimiter refills rate tokens per second up to capacity.
type TokenBucketLimiter struct {
	capacity float64
	rate     float64

	mu         sync.Mutex
	tokens     float64
	lastUpdate time.Time
}

func NewTokenBucketLimiter(rate, capacity int64) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		capacity:   float64(capacity),
		rate:       float64(rate),
		tokens:     float64(capacity),
		lastUpdate: time.Now(),
	}
}

func (tb *TokenBucketLimiter) Allow(ctx context.Context) bool {
	return tb.AllowN(ctx, 1)
}

func (tb *TokenBucketLimiter) AllowN(ctx context.Context, n int) bool {
	if n <= 0 {
		return true
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	_, ok := tb.take(time.Now(), float64(n))
	return ok
}

func (tb *TokenBucketLimiter) Wait(ctx context.Context) error {
	return tb.WaitN(ctx, 1)
}

// take refills and removes n tokens if available. Otherwise it reports how
// long until n tokens will be. tb.mu must be held.
func (tb *TokenBucketLimiter) take(now time.Time, n float64) (time.Duration, bool) {
	if elapsed := now.Sub(tb.lastUpdate); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed.Seconds()*tb.rate)
		tb.lastUpdate = now
	}

	if tb.tokens >= n {
		tb.tokens -= n
		return 0, true
	}
	if tb.rate <= 0 {
		return -1, false
	}
	missing := n - tb.tokens
	return time.Duration(missing / tb.rate * float64(time.Second)), false
}

func (tb *TokenBucketLimiter) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if float64(n) > tb.capacity {
		return ErrInvalidRequest
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tb.mu.Lock()
		wait, ok := tb.take(time.Now(), float64(n))
		tb.mu.Unlock()

		if ok {
			return nil
		}
		if wait < 0 {
			return ErrInvalidRequest
		}
		wait = max(wait, time.Microsecond)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (tb *TokenBucketLimiter) Name() string {
	return "token-bucket"
}
