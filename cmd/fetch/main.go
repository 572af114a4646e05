package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"priceresolver/internal/batch"
	"priceresolver/internal/cache"
	"priceresolver/internal/config"
	"priceresolver/internal/httpx"
	"priceresolver/internal/instrument"
	"priceresolver/internal/nav"
	"priceresolver/internal/quote"
	"priceresolver/internal/resolver"
	"priceresolver/internal/store"
)

func main() {
	var stocksCSV string
	var fundsCSV string
	var timeout int
	var configPath string

	flag.StringVar(&stocksCSV, "stocks", getenv("STOCKS", ""), "comma-separated stock tickers")
	flag.StringVar(&fundsCSV, "funds", getenv("FUNDS", ""), "comma-separated fund scheme codes")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 15), "request timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if timeout != 0 {
		cfg.Server.RequestTimeoutSec = timeout
	}

	refs := make([]instrument.Ref, 0)
	for _, s := range splitCSV(stocksCSV) {
		refs = append(refs, instrument.Ref{ID: s, Kind: instrument.KindStock})
	}
	for _, s := range splitCSV(fundsCSV) {
		refs = append(refs, instrument.Ref{ID: s, Kind: instrument.KindFund})
	}
	if len(refs) == 0 {
		log.Fatal("no instruments provided; use -stocks and/or -funds")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	// One-shot run: no durable tier, every price comes from upstream.
	priceCache := &cache.Store{Records: store.NewMemory(), Log: logger}
	quoteClient := quote.NewClient(
		cfg.Quote.APIKey,
		quote.WithBaseURL(cfg.Quote.Endpoint),
		quote.WithHTTPClient(httpClient.HTTP),
	)
	navs := nav.New(nav.Config{
		URL:         cfg.Nav.Endpoint,
		SnapshotTTL: time.Duration(cfg.Nav.SnapshotTTLSec) * time.Second,
	}, httpClient)
	res := &resolver.Resolver{
		Cache:           priceCache,
		Stocks:          quoteClient,
		Funds:           navs,
		FreshnessWindow: time.Duration(cfg.Cache.FreshnessWindowMin) * time.Minute,
		Log:             logger,
	}
	fetcher := &batch.Fetcher{Resolver: res, Navs: navs, MaxConcurrency: cfg.Batch.MaxConcurrency}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSec)*time.Second)
	defer cancel()

	items := fetcher.GetPrices(ctx, refs)
	failed := 0
	for _, it := range items {
		if it.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		logger.Warn("some instruments failed", "failed", failed, "total", len(items))
	}

	b, _ := json.MarshalIndent(items, "", "  ")
	fmt.Println(string(b))
	if failed == len(items) {
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x != 0 {
			return x
		}
	}
	return def
}
