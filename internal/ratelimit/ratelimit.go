package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Fetcher fetches a single price by symbol. Both gates below wrap one and
// satisfy it themselves, so they stack.
type Fetcher interface {
	FetchOne(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// TokenBucket is a minimal token bucket limiter.
// - rate: tokens per second
// - capacity: maximum tokens the bucket can hold (burst)
type TokenBucket struct {
	rate     float64
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 0.0000001
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(burst),
		tokens:   float64(burst), // start full to allow an initial burst
		last:     time.Now(),
	}
}

// wait blocks until one token is available or the context is canceled.
func (tb *TokenBucket) wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.last).Seconds()
		if elapsed > 0 {
			tb.tokens += elapsed * tb.rate
			if tb.tokens > tb.capacity {
				tb.tokens = tb.capacity
			}
			tb.last = now
		}
		if tb.tokens >= 1 {
			tb.tokens -= 1
			tb.mu.Unlock()
			return nil
		}
		deficit := 1 - tb.tokens
		tb.mu.Unlock()
		// time needed to accumulate one token
		waitDur := time.Duration(deficit / tb.rate * 1e9)
		if waitDur <= 0 {
			waitDur = time.Millisecond
		}
		timer := time.NewTimer(waitDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TokenBucketFetcher gates quote calls through a token bucket.
type TokenBucketFetcher struct {
	F  Fetcher
	TB *TokenBucket
}

func (t *TokenBucketFetcher) FetchOne(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if t.TB != nil {
		if err := t.TB.wait(ctx); err != nil {
			return decimal.Zero, err
		}
	}
	return t.F.FetchOne(ctx, symbol)
}

// MinIntervalFetcher enforces a minimum time between quote calls. Concurrent
// callers wait until the interval since the last call has elapsed, or return
// early when the context is canceled.
type MinIntervalFetcher struct {
	F        Fetcher
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinIntervalFetcher) FetchOne(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if m.Interval > 0 {
		m.mu.Lock()
		wait := time.Until(m.last.Add(m.Interval))
		m.mu.Unlock()
		if wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return decimal.Zero, ctx.Err()
			case <-t.C:
			}
		}
	}
	price, err := m.F.FetchOne(ctx, symbol)
	if m.Interval > 0 {
		m.mu.Lock()
		m.last = time.Now()
		m.mu.Unlock()
	}
	return price, err
}
