package store

import (
	"context"
	"sync"
	"time"

	"priceresolver/internal/pricing"
)

// Memory is an in-process RecordStore. It backs the persistent tier when no
// database is configured and doubles as a test double; entries do not survive
// a restart.
type Memory struct {
	mu    sync.RWMutex
	items map[string]pricing.Entry
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]pricing.Entry)}
}

func (m *Memory) FindByKey(_ context.Context, instrumentID string) (*pricing.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.items[instrumentID]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *Memory) Upsert(_ context.Context, e pricing.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]pricing.Entry)
	}
	m.items[e.InstrumentID] = e
	return nil
}

func (m *Memory) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]pricing.Entry)
	return nil
}

func (m *Memory) Aggregate(_ context.Context) (int64, *time.Time, *time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.items) == 0 {
		return 0, nil, nil, nil
	}
	var oldest, newest time.Time
	for _, e := range m.items {
		if oldest.IsZero() || e.LastUpdated.Before(oldest) {
			oldest = e.LastUpdated
		}
		if newest.IsZero() || e.LastUpdated.After(newest) {
			newest = e.LastUpdated
		}
	}
	return int64(len(m.items)), &oldest, &newest, nil
}
