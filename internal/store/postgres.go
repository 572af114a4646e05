package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"priceresolver/internal/pricing"
)

const schema = `
CREATE TABLE IF NOT EXISTS price_cache (
    instrument_id TEXT PRIMARY KEY,
    price         TEXT NOT NULL,
    source        TEXT NOT NULL,
    last_updated  TIMESTAMPTZ NOT NULL
)`

// Postgres is the durable RecordStore. Prices are stored as text to round-trip
// decimals exactly; upsert semantics give last-writer-wins per key, which is
// acceptable for disposable price data.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) FindByKey(ctx context.Context, instrumentID string) (*pricing.Entry, error) {
	const q = `SELECT instrument_id, price, source, last_updated FROM price_cache WHERE instrument_id = $1`
	var (
		e        pricing.Entry
		rawPrice string
		src      string
	)
	err := p.pool.QueryRow(ctx, q, instrumentID).Scan(&e.InstrumentID, &rawPrice, &src, &e.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return nil, fmt.Errorf("stored price %q: %w", rawPrice, err)
	}
	e.Price = price
	e.Source = pricing.Source(src)
	return &e, nil
}

func (p *Postgres) Upsert(ctx context.Context, e pricing.Entry) error {
	const q = `
		INSERT INTO price_cache (instrument_id, price, source, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instrument_id) DO UPDATE
		SET price = EXCLUDED.price, source = EXCLUDED.source, last_updated = EXCLUDED.last_updated`
	_, err := p.pool.Exec(ctx, q, e.InstrumentID, e.Price.String(), string(e.Source), e.LastUpdated)
	return err
}

func (p *Postgres) DeleteAll(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM price_cache`)
	return err
}

func (p *Postgres) Aggregate(ctx context.Context) (int64, *time.Time, *time.Time, error) {
	const q = `SELECT COUNT(*), MIN(last_updated), MAX(last_updated) FROM price_cache`
	var (
		count          int64
		oldest, newest *time.Time
	)
	if err := p.pool.QueryRow(ctx, q).Scan(&count, &oldest, &newest); err != nil {
		return 0, nil, nil, err
	}
	return count, oldest, newest, nil
}
