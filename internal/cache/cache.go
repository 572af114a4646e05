package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"priceresolver/internal/pricing"
)

// RecordStore is the durable cache tier. Implementations upsert by
// instrument id; last-writer-wins is acceptable for price data.
//
//go:generate mockgen -package=cache_test -destination=mock_record_store_test.go -source=cache.go RecordStore
type RecordStore interface {
	// FindByKey returns the stored entry or (nil, nil) when absent.
	FindByKey(ctx context.Context, instrumentID string) (*pricing.Entry, error)
	Upsert(ctx context.Context, e pricing.Entry) error
	DeleteAll(ctx context.Context) error
	// Aggregate returns the entry count and the oldest/newest LastUpdated.
	// oldest and newest are nil when the store is empty.
	Aggregate(ctx context.Context) (count int64, oldest, newest *time.Time, err error)
}

// Store is the two-tier price cache: an in-process map over a durable
// RecordStore. The persistent tier is the source of truth across restarts;
// the in-process tier is a read-through optimization. Persistent-tier
// failures are logged and swallowed, never propagated.
type Store struct {
	Records RecordStore  // optional; nil means in-process only
	Log     *slog.Logger // optional

	mu    sync.RWMutex
	items map[string]pricing.Entry
}

// Get returns the cached entry for an instrument, consulting the in-process
// tier first and falling back to the persistent tier. A persistent hit
// populates the in-process tier before returning. Freshness is the caller's
// concern: entries of any age are returned.
func (s *Store) Get(ctx context.Context, instrumentID string) (pricing.Entry, bool) {
	s.mu.RLock()
	e, ok := s.items[instrumentID]
	s.mu.RUnlock()
	if ok {
		return e, true
	}

	if s.Records == nil {
		return pricing.Entry{}, false
	}
	rec, err := s.Records.FindByKey(ctx, instrumentID)
	if err != nil {
		s.logSwallowed(instrumentID, &pricing.CacheWriteError{Op: "get", Err: err})
		return pricing.Entry{}, false
	}
	if rec == nil {
		return pricing.Entry{}, false
	}

	s.mu.Lock()
	if s.items == nil {
		s.items = make(map[string]pricing.Entry)
	}
	s.items[instrumentID] = *rec
	s.mu.Unlock()
	return *rec, true
}

// Put records a freshly fetched price in both tiers with LastUpdated=now.
// A durable write failure does not fail the call: the in-process write
// already succeeded and the price is re-fetchable.
func (s *Store) Put(ctx context.Context, instrumentID string, price decimal.Decimal, source pricing.Source) pricing.Entry {
	e := pricing.Entry{
		InstrumentID: instrumentID,
		Price:        price,
		Source:       source,
		LastUpdated:  time.Now().UTC(),
	}

	s.mu.Lock()
	if s.items == nil {
		s.items = make(map[string]pricing.Entry)
	}
	s.items[instrumentID] = e
	s.mu.Unlock()

	if s.Records != nil {
		if err := s.Records.Upsert(ctx, e); err != nil {
			s.logSwallowed(instrumentID, &pricing.CacheWriteError{Op: "put", Err: err})
		}
	}
	return e
}

// Clear empties both tiers. A persistent-tier failure is swallowed like any
// other durable cache error.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()

	if s.Records != nil {
		if err := s.Records.DeleteAll(ctx); err != nil {
			s.logSwallowed("", &pricing.CacheWriteError{Op: "clear", Err: err})
		}
	}
}

// Stats reports the in-process entry count and, best effort, the persistent
// tier aggregate. On a store failure the persistent numbers degrade to zero.
func (s *Store) Stats(ctx context.Context) pricing.CacheStats {
	s.mu.RLock()
	stats := pricing.CacheStats{MemoryEntries: len(s.items)}
	s.mu.RUnlock()

	if s.Records == nil {
		return stats
	}
	count, oldest, newest, err := s.Records.Aggregate(ctx)
	if err != nil {
		s.logSwallowed("", &pricing.CacheWriteError{Op: "stats", Err: err})
		return stats
	}
	stats.PersistentEntries = count
	stats.OldestUpdated = oldest
	stats.NewestUpdated = newest
	return stats
}

func (s *Store) logSwallowed(instrumentID string, err error) {
	if s.Log == nil {
		return
	}
	if instrumentID != "" {
		s.Log.Warn("persistent cache tier unavailable", "instrument", instrumentID, "error", err)
		return
	}
	s.Log.Warn("persistent cache tier unavailable", "error", err)
}
