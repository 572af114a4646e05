package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"priceresolver/internal/instrument"
	"priceresolver/internal/pricing"
)

// DefaultMaxConcurrency bounds in-flight resolutions per batch.
const DefaultMaxConcurrency = 8

// Resolver is the per-instrument resolution the batch fans out to.
type Resolver interface {
	GetPrice(ctx context.Context, ref instrument.Ref) (pricing.Result, error)
	ResolveWith(ctx context.Context, id string, source pricing.Source, fetch func(context.Context) (decimal.Decimal, error)) (pricing.Result, error)
}

// NavSource provides the one-shot bulk fund valuation result.
type NavSource interface {
	Snapshot(ctx context.Context) (map[string]pricing.FundNavRecord, error)
}

// Fetcher resolves a heterogeneous list of instruments concurrently. Fund
// identifiers share a single bulk download; each identifier's outcome is
// collected independently, so one bad symbol never blanks the whole batch.
type Fetcher struct {
	Resolver Resolver
	Navs     NavSource
	// MaxConcurrency defaults to DefaultMaxConcurrency when <= 0.
	MaxConcurrency int
}

// GetPrices returns exactly one item per input identifier, in input order.
// It never fails as a whole: per-identifier failures, including cancellation
// of pending items, are reported inside the items.
func (f *Fetcher) GetPrices(ctx context.Context, refs []instrument.Ref) []pricing.BatchItem {
	out := make([]pricing.BatchItem, len(refs))
	if len(refs) == 0 {
		return out
	}

	// One bulk NAV download per batch, triggered lazily by the first fund
	// identifier whose cache entry is not fresh.
	loadSnapshot := sync.OnceValues(func() (map[string]pricing.FundNavRecord, error) {
		return f.Navs.Snapshot(ctx)
	})

	maxConc := f.MaxConcurrency
	if maxConc <= 0 {
		maxConc = DefaultMaxConcurrency
	}
	sem := make(chan struct{}, maxConc)
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref instrument.Ref) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				out[i] = pricing.FailedBatchItem(ref.ID, ctx.Err())
				return
			}

			var res pricing.Result
			var err error
			switch ref.Kind {
			case instrument.KindStock:
				res, err = f.Resolver.GetPrice(ctx, ref)
			case instrument.KindFund:
				res, err = f.Resolver.ResolveWith(ctx, ref.ID, pricing.SourceBulkNav, func(ctx context.Context) (decimal.Decimal, error) {
					snap, err := loadSnapshot()
					if err != nil {
						return decimal.Zero, err
					}
					rec, ok := snap[ref.ID]
					if !ok {
						return decimal.Zero, &pricing.NotFoundError{InstrumentID: ref.ID}
					}
					return rec.NAV, nil
				})
			default:
				err = fmt.Errorf("unknown instrument kind %q", ref.Kind)
			}
			if err != nil {
				out[i] = pricing.FailedBatchItem(ref.ID, err)
				return
			}
			out[i] = pricing.OKBatchItem(res)
		}(i, ref)
	}
	wg.Wait()
	return out
}
