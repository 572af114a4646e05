package pricing

import (
	"context"

	"priceresolver/internal/instrument"
)

// PriceGetter resolves a single instrument.
type PriceGetter interface {
	GetPrice(ctx context.Context, ref instrument.Ref) (Result, error)
}

// BatchGetter resolves a heterogeneous list of instruments. It never fails
// as a whole; per-identifier outcomes are carried in the items.
type BatchGetter interface {
	GetPrices(ctx context.Context, refs []instrument.Ref) []BatchItem
}

// CacheControl exposes the administrative cache operations.
type CacheControl interface {
	Clear(ctx context.Context)
	Stats(ctx context.Context) CacheStats
}

// Service is the surface the rest of the application calls. It only wires
// the resolver, the batch fetcher and the cache together.
type Service struct {
	Prices  PriceGetter
	Batches BatchGetter
	Cache   CacheControl
}

func (s *Service) GetPrice(ctx context.Context, ref instrument.Ref) (Result, error) {
	return s.Prices.GetPrice(ctx, ref)
}

func (s *Service) BatchGetPrices(ctx context.Context, refs []instrument.Ref) []BatchItem {
	return s.Batches.GetPrices(ctx, refs)
}

func (s *Service) ClearAllCaches(ctx context.Context) {
	s.Cache.Clear(ctx)
}

func (s *Service) GetCacheStats(ctx context.Context) CacheStats {
	return s.Cache.Stats(ctx)
}
