package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"priceresolver/internal/instrument"
	"priceresolver/internal/pricing"
)

type fakePrices struct {
	results map[string]pricing.Result
	err     error
}

func (f fakePrices) GetPrice(_ context.Context, ref instrument.Ref) (pricing.Result, error) {
	if f.err != nil {
		return pricing.Result{}, f.err
	}
	res, ok := f.results[ref.ID]
	if !ok {
		return pricing.Result{}, &pricing.NotFoundError{InstrumentID: ref.ID}
	}
	return res, nil
}

type fakeBatches struct{ prices fakePrices }

func (f fakeBatches) GetPrices(ctx context.Context, refs []instrument.Ref) []pricing.BatchItem {
	out := make([]pricing.BatchItem, len(refs))
	for i, ref := range refs {
		res, err := f.prices.GetPrice(ctx, ref)
		if err != nil {
			out[i] = pricing.FailedBatchItem(ref.ID, err)
			continue
		}
		out[i] = pricing.OKBatchItem(res)
	}
	return out
}

func newTestService(prices fakePrices) *pricing.Service {
	return &pricing.Service{Prices: prices, Batches: fakeBatches{prices}}
}

func TestGetPriceHandler(t *testing.T) {
	svc := newTestService(fakePrices{results: map[string]pricing.Result{
		"RELIANCE": {InstrumentID: "RELIANCE", Price: decimal.NewFromInt(2500), Source: pricing.SourceLiveQuote, FromCache: true},
	}})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/price?symbol=RELIANCE&kind=stock", nil)
	handleGetPrice(rr, req, svc)
	if rr.Code != 200 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var res pricing.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.InstrumentID != "RELIANCE" || res.Price.String() != "2500" || !res.FromCache {
		t.Fatalf("unexpected: %+v", res)
	}
}

func TestGetPriceHandler_MissingSymbol(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/price?kind=stock", nil)
	handleGetPrice(rr, req, newTestService(fakePrices{}))
	if rr.Code != 400 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetPriceHandler_BadKind(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/price?symbol=RELIANCE&kind=bond", nil)
	handleGetPrice(rr, req, newTestService(fakePrices{}))
	if rr.Code != 400 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetPriceHandler_NotFoundMapsTo404(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/price?symbol=NOSUCH&kind=stock", nil)
	handleGetPrice(rr, req, newTestService(fakePrices{}))
	if rr.Code != 404 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGetPriceHandler_UpstreamMapsTo502(t *testing.T) {
	svc := newTestService(fakePrices{err: &pricing.UpstreamError{Source: "quote", Err: errors.New("boom")}})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/price?symbol=RELIANCE&kind=stock", nil)
	handleGetPrice(rr, req, svc)
	if rr.Code != 502 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestBatchPricesHandler(t *testing.T) {
	svc := newTestService(fakePrices{results: map[string]pricing.Result{
		"RELIANCE": {InstrumentID: "RELIANCE", Price: decimal.NewFromInt(2500), Source: pricing.SourceLiveQuote},
		"120503":   {InstrumentID: "120503", Price: decimal.RequireFromString("87.1234"), Source: pricing.SourceBulkNav},
	}})

	body := `{"instruments":[{"id":"RELIANCE","kind":"stock"},{"id":"NOSUCH","kind":"stock"},{"id":"120503","kind":"fund"}]}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/prices", strings.NewReader(body))
	handleBatchPrices(rr, req, svc)
	if rr.Code != 200 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp batchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Prices) != 3 {
		t.Fatalf("want 3 items, got %d: %+v", len(resp.Prices), resp.Prices)
	}
	if resp.Prices[0].InstrumentID != "RELIANCE" || resp.Prices[0].Error != "" {
		t.Fatalf("unexpected first item: %+v", resp.Prices[0])
	}
	if resp.Prices[1].Error == "" || resp.Prices[1].Price != nil {
		t.Fatalf("missing symbol must carry an error: %+v", resp.Prices[1])
	}
	if resp.Prices[2].Price.String() != "87.1234" {
		t.Fatalf("unexpected third item: %+v", resp.Prices[2])
	}
}

func TestBatchPricesHandler_EmptyList(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/prices", strings.NewReader(`{"instruments":[]}`))
	handleBatchPrices(rr, req, newTestService(fakePrices{}))
	if rr.Code != 400 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestBatchPricesHandler_InvalidJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/prices", strings.NewReader("not json"))
	handleBatchPrices(rr, req, newTestService(fakePrices{}))
	if rr.Code != 400 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}
