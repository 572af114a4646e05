package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"priceresolver/internal/config"
	"priceresolver/internal/httpx"
	"priceresolver/internal/nav"
)

// navdump downloads the bulk NAV file once, parses it and writes the
// records as a JSON array for inspection.
func main() {
	var (
		outPath    string
		cfgPath    string
		endpoint   string
		timeoutSec int
	)
	flag.StringVar(&outPath, "out", "", "output file path (default stdout)")
	flag.StringVar(&cfgPath, "config", "", "path to config.json (optional)")
	flag.StringVar(&endpoint, "endpoint", "", "bulk NAV endpoint override")
	flag.IntVar(&timeoutSec, "timeout", 60, "HTTP timeout seconds")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if endpoint == "" {
		endpoint = cfg.Nav.Endpoint
	}
	if endpoint == "" {
		log.Fatal("no NAV endpoint (set -endpoint, config.json or NAV_ENDPOINT)")
	}

	httpClient := httpx.New(time.Duration(timeoutSec) * time.Second)
	src := nav.New(nav.Config{URL: endpoint}, httpClient)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()
	records, err := src.FetchAll(ctx)
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}
	log.Printf("parsed %d records", len(records))

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			log.Fatalf("create out: %v", err)
		}
		defer f.Close()
		out = f
	}
	bw := bufio.NewWriterSize(out, 1<<20)
	defer bw.Flush()

	enc := json.NewEncoder(bw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		log.Fatalf("encode: %v", err)
	}
}
