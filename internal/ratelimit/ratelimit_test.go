package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type stubFetcher struct{ calls int }

func (s *stubFetcher) FetchOne(context.Context, string) (decimal.Decimal, error) {
	s.calls++
	return decimal.NewFromInt(100), nil
}

func TestTokenBucket_AllowsBurst(t *testing.T) {
	f := &stubFetcher{}
	tb := &TokenBucketFetcher{F: f, TB: NewTokenBucket(1, 3)}

	for i := 0; i < 3; i++ {
		if _, err := tb.FetchOne(context.Background(), "RELIANCE"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if f.calls != 3 {
		t.Fatalf("want 3 calls, got %d", f.calls)
	}
}

func TestTokenBucket_CanceledContextWhileWaiting(t *testing.T) {
	f := &stubFetcher{}
	// Bucket starts full with one token and refills too slowly to matter.
	tb := &TokenBucketFetcher{F: f, TB: NewTokenBucket(0.001, 1)}

	if _, err := tb.FetchOne(context.Background(), "RELIANCE"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := tb.FetchOne(ctx, "RELIANCE"); err == nil {
		t.Fatal("want context error while waiting for a token")
	}
	if f.calls != 1 {
		t.Fatalf("gated call must not reach the fetcher, got %d", f.calls)
	}
}

func TestMinInterval_SpacesCalls(t *testing.T) {
	f := &stubFetcher{}
	m := &MinIntervalFetcher{F: f, Interval: 30 * time.Millisecond}

	start := time.Now()
	if _, err := m.FetchOne(context.Background(), "RELIANCE"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := m.FetchOne(context.Background(), "RELIANCE"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("second call ran after %v, want at least the interval", elapsed)
	}
}

func TestMinInterval_CanceledContext(t *testing.T) {
	f := &stubFetcher{}
	m := &MinIntervalFetcher{F: f, Interval: time.Second}

	if _, err := m.FetchOne(context.Background(), "RELIANCE"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.FetchOne(ctx, "RELIANCE"); err == nil {
		t.Fatal("want context error")
	}
	if f.calls != 1 {
		t.Fatalf("canceled call must not reach the fetcher, got %d", f.calls)
	}
}
