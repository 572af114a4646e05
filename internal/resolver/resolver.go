package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"priceresolver/internal/cache"
	"priceresolver/internal/instrument"
	"priceresolver/internal/pricing"
)

// DefaultFreshnessWindow is the maximum age at which a cached price is
// served without re-fetching.
const DefaultFreshnessWindow = 60 * time.Minute

// StockSource yields a live quote for one ticker.
type StockSource interface {
	FetchOne(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// FundSource yields the current NAV for one scheme code.
type FundSource interface {
	FetchOne(ctx context.Context, schemeCode string) (decimal.Decimal, error)
}

// Resolver answers "what is the current price of instrument X" in three
// steps: serve a fresh cache entry; otherwise fetch from the source matching
// the instrument kind and write back; on fetch failure fall back to any
// cached entry regardless of age. Live sources are flaky and a stale price
// is materially more useful to a dashboard than a hard error.
type Resolver struct {
	Cache  *cache.Store
	Stocks StockSource
	Funds  FundSource
	// FreshnessWindow defaults to DefaultFreshnessWindow when <= 0.
	FreshnessWindow time.Duration
	Log             *slog.Logger
}

// GetPrice resolves a single instrument. The error, when set, is the
// original upstream failure: it surfaces only when no cached value exists.
func (r *Resolver) GetPrice(ctx context.Context, ref instrument.Ref) (pricing.Result, error) {
	switch ref.Kind {
	case instrument.KindStock:
		return r.ResolveWith(ctx, ref.ID, pricing.SourceLiveQuote, func(ctx context.Context) (decimal.Decimal, error) {
			return r.Stocks.FetchOne(ctx, ref.ID)
		})
	case instrument.KindFund:
		return r.ResolveWith(ctx, ref.ID, pricing.SourceBulkNav, func(ctx context.Context) (decimal.Decimal, error) {
			return r.Funds.FetchOne(ctx, ref.ID)
		})
	}
	return pricing.Result{}, fmt.Errorf("unknown instrument kind %q", ref.Kind)
}

// ResolveWith runs the cache state machine around an arbitrary fetch. The
// batch layer uses it to resolve fund identifiers against one shared bulk
// snapshot instead of a per-identifier download.
func (r *Resolver) ResolveWith(ctx context.Context, id string, source pricing.Source, fetch func(context.Context) (decimal.Decimal, error)) (pricing.Result, error) {
	window := r.FreshnessWindow
	if window <= 0 {
		window = DefaultFreshnessWindow
	}

	if e, ok := r.Cache.Get(ctx, id); ok && e.FreshAt(time.Now(), window) {
		return cachedResult(e, false), nil
	}

	price, err := fetch(ctx)
	if err != nil {
		// Fall back to the last known value regardless of freshness.
		if e, ok := r.Cache.Get(ctx, id); ok {
			if r.Log != nil {
				r.Log.Warn("serving stale cached price", "instrument", id, "age", time.Since(e.LastUpdated).Round(time.Second).String(), "error", err)
			}
			return cachedResult(e, true), nil
		}
		return pricing.Result{}, err
	}
	if price.Sign() <= 0 {
		// Invalid responses are never cached; treat like any upstream failure.
		err := &pricing.UpstreamError{Source: string(source), Err: fmt.Errorf("non-positive price %s for %q", price, id)}
		if e, ok := r.Cache.Get(ctx, id); ok {
			return cachedResult(e, true), nil
		}
		return pricing.Result{}, err
	}

	r.Cache.Put(ctx, id, price, source)
	return pricing.Result{InstrumentID: id, Price: price, Source: source}, nil
}

func cachedResult(e pricing.Entry, stale bool) pricing.Result {
	return pricing.Result{
		InstrumentID: e.InstrumentID,
		Price:        e.Price,
		Source:       e.Source,
		FromCache:    true,
		Stale:        stale,
	}
}
