package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source is the provenance of a resolved or cached price.
type Source string

const (
	// SourceLiveQuote marks prices fetched from the real-time quote endpoint.
	SourceLiveQuote Source = "live_quote"
	// SourceBulkNav marks prices taken from the bulk end-of-day NAV file.
	SourceBulkNav Source = "bulk_nav"
)

// Entry is the single cached price held per instrument identifier.
// Price is strictly positive; invalid upstream responses are never cached.
type Entry struct {
	InstrumentID string          `json:"instrument_id"`
	Price        decimal.Decimal `json:"price"`
	Source       Source          `json:"source"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// FreshAt reports whether the entry is within the freshness window at now.
func (e Entry) FreshAt(now time.Time, window time.Duration) bool {
	return now.Sub(e.LastUpdated) < window
}

// Result is the outcome of a single price resolution.
type Result struct {
	InstrumentID string          `json:"instrument_id"`
	Price        decimal.Decimal `json:"price"`
	Source       Source          `json:"source"`
	FromCache    bool            `json:"from_cache"`
	// Stale marks a cached value served past the freshness window because a
	// fresh fetch failed. The dashboard shows these with a "cached" badge.
	Stale bool `json:"stale,omitempty"`
}

// FundNavRecord is one parsed line of the bulk NAV file. Transient: the
// resolver caches only the price it extracts, never the record itself.
type FundNavRecord struct {
	SchemeCode string          `json:"scheme_code"`
	SchemeName string          `json:"scheme_name"`
	NAV        decimal.Decimal `json:"nav"`
	AsOfDate   time.Time       `json:"as_of_date"`
}

// BatchItem is one entry of a batch response, aligned with the input order.
// Either Price is set or Error carries the per-identifier failure.
type BatchItem struct {
	InstrumentID string           `json:"id"`
	Price        *decimal.Decimal `json:"price"`
	Source       Source           `json:"source,omitempty"`
	Stale        bool             `json:"stale,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// OKBatchItem builds a successful batch entry from a resolution result.
func OKBatchItem(res Result) BatchItem {
	p := res.Price
	return BatchItem{
		InstrumentID: res.InstrumentID,
		Price:        &p,
		Source:       res.Source,
		Stale:        res.Stale,
	}
}

// FailedBatchItem wraps a per-identifier failure without aborting the batch.
func FailedBatchItem(id string, err error) BatchItem {
	return BatchItem{
		InstrumentID: id,
		Error:        (&BatchItemError{InstrumentID: id, Err: err}).Error(),
	}
}

// CacheStats is a best-effort snapshot of both cache tiers. Persistent-tier
// numbers degrade to zero when the store cannot be queried.
type CacheStats struct {
	MemoryEntries     int        `json:"memory_entries"`
	PersistentEntries int64      `json:"persistent_entries"`
	OldestUpdated     *time.Time `json:"oldest_updated,omitempty"`
	NewestUpdated     *time.Time `json:"newest_updated,omitempty"`
}
