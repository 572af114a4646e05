package pricing

import "fmt"

// UpstreamError reports a transport failure, a non-2xx response, or an
// unparseable payload from a price source. The resolver recovers from it via
// the stale-fallback path when any cached value exists.
type UpstreamError struct {
	Source string // source name, e.g. "quote" or "navall"
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NotFoundError reports an instrument absent from a successfully fetched
// data set. Not retried: re-fetching an unchanged data set is pointless.
type NotFoundError struct {
	InstrumentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("instrument %q not found in upstream data", e.InstrumentID)
}

// CacheWriteError reports a persistent-tier read/write failure. It is always
// swallowed at the cache boundary: logged, never propagated, because price
// data is disposable and re-fetchable.
type CacheWriteError struct {
	Op  string // "get", "put", "clear", "stats"
	Err error
}

func (e *CacheWriteError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheWriteError) Unwrap() error { return e.Err }

// BatchItemError wraps any failure for a single identifier inside a batch.
// It never escalates to abort the batch.
type BatchItemError struct {
	InstrumentID string
	Err          error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.InstrumentID, e.Err)
}

func (e *BatchItemError) Unwrap() error { return e.Err }
