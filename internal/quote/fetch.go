package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"

	"priceresolver/internal/pricing"
)

// sourceName tags UpstreamErrors raised by this client.
const sourceName = "quote"

// FetchOne returns the current price for a single ticker. It fails with an
// UpstreamError when the transport fails, the response is malformed, or no
// usable price field is present. No retries at this layer.
func (c *Client) FetchOne(ctx context.Context, ticker string) (decimal.Decimal, error) {
	query := maps.Clone(c.query)
	query.Set("symbol", ticker)

	u := fmt.Sprintf("%s/v1/quote?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return decimal.Zero, &pricing.UpstreamError{Source: sourceName, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, &pricing.UpstreamError{Source: sourceName, Err: fmt.Errorf("performing request: %w", err)}
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break
	case http.StatusNotFound:
		return decimal.Zero, &pricing.NotFoundError{InstrumentID: ticker}
	case http.StatusTooManyRequests:
		return decimal.Zero, &pricing.UpstreamError{Source: sourceName, Err: fmt.Errorf("rate limited")}
	default:
		return decimal.Zero, &pricing.UpstreamError{Source: sourceName, Err: fmt.Errorf("unexpected status code: %d", res.StatusCode)}
	}

	// Validate the shape at the boundary: anything not matching is an
	// upstream error, nothing undefined propagates downstream.
	var body struct {
		Symbol string `json:"symbol"`
		Price  any    `json:"price"`
	}
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return decimal.Zero, &pricing.UpstreamError{Source: sourceName, Err: fmt.Errorf("decoding quote response: %w", err)}
	}

	var raw string
	switch v := body.Price.(type) {
	case json.Number:
		raw = v.String()
	case string:
		raw = v
	default:
		return decimal.Zero, &pricing.UpstreamError{Source: sourceName, Err: fmt.Errorf("no usable price field for %q", ticker)}
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &pricing.UpstreamError{Source: sourceName, Err: fmt.Errorf("price %q: %w", raw, err)}
	}
	if price.Sign() <= 0 {
		return decimal.Zero, &pricing.UpstreamError{Source: sourceName, Err: fmt.Errorf("non-positive price %s for %q", price, ticker)}
	}
	return price, nil
}

// ManyResult is the per-ticker outcome of FetchMany.
type ManyResult struct {
	Price decimal.Decimal
	Err   error
}

// FetchMany resolves each ticker independently so that one bad ticker does
// not block the others. maxConcurrency bounds in-flight requests; <= 0 means 4.
func (c *Client) FetchMany(ctx context.Context, tickers []string, maxConcurrency int) map[string]ManyResult {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	sem := make(chan struct{}, maxConcurrency)
	out := make(map[string]ManyResult, len(tickers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, t := range tickers {
		mu.Lock()
		if _, dup := out[t]; dup {
			mu.Unlock()
			continue
		}
		out[t] = ManyResult{}
		mu.Unlock()

		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				out[ticker] = ManyResult{Err: ctx.Err()}
				mu.Unlock()
				return
			}
			price, err := c.FetchOne(ctx, ticker)
			mu.Lock()
			out[ticker] = ManyResult{Price: price, Err: err}
			mu.Unlock()
		}(t)
	}
	wg.Wait()
	return out
}
