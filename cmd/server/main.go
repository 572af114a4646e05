package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"priceresolver/internal/batch"
	"priceresolver/internal/cache"
	"priceresolver/internal/config"
	"priceresolver/internal/httpx"
	"priceresolver/internal/instrument"
	"priceresolver/internal/nav"
	"priceresolver/internal/pricing"
	"priceresolver/internal/quote"
	"priceresolver/internal/ratelimit"
	"priceresolver/internal/resolver"
	"priceresolver/internal/store"
)

func main() {
	cfgPath := os.Getenv("CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if cfg.Quote.Endpoint == "" {
		logger.Warn("quote.endpoint not set; stock resolution will rely on cached prices only")
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	// Durable tier: Postgres when configured, in-process otherwise.
	var records cache.RecordStore
	if cfg.Cache.PostgresDSN != "" {
		pg, err := store.NewPostgres(context.Background(), cfg.Cache.PostgresDSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pg.Close()
		records = pg
	} else {
		logger.Warn("no postgres_dsn configured; cached prices will not survive restarts")
		records = store.NewMemory()
	}
	priceCache := &cache.Store{Records: records, Log: logger}

	quoteClient := quote.NewClient(
		cfg.Quote.APIKey,
		quote.WithBaseURL(cfg.Quote.Endpoint),
		quote.WithHTTPClient(httpClient.HTTP),
	)
	var stocks resolver.StockSource = quoteClient
	// Prefer token bucket with burst if RPM is set, otherwise use min-interval.
	if cfg.Quote.MaxRequestsPerMinute > 0 {
		rate := float64(cfg.Quote.MaxRequestsPerMinute) / 60.0
		burst := cfg.Quote.Burst
		if burst <= 0 {
			burst = 1
		}
		stocks = &ratelimit.TokenBucketFetcher{F: stocks, TB: ratelimit.NewTokenBucket(rate, burst)}
	} else if cfg.Quote.MinRequestIntervalSec > 0 {
		stocks = &ratelimit.MinIntervalFetcher{F: stocks, Interval: time.Duration(cfg.Quote.MinRequestIntervalSec) * time.Second}
	}

	navs := nav.New(nav.Config{
		URL:         cfg.Nav.Endpoint,
		SnapshotTTL: time.Duration(cfg.Nav.SnapshotTTLSec) * time.Second,
	}, httpClient)

	res := &resolver.Resolver{
		Cache:           priceCache,
		Stocks:          stocks,
		Funds:           navs,
		FreshnessWindow: time.Duration(cfg.Cache.FreshnessWindowMin) * time.Minute,
		Log:             logger,
	}
	svc := &pricing.Service{
		Prices:  res,
		Batches: &batch.Fetcher{Resolver: res, Navs: navs, MaxConcurrency: cfg.Batch.MaxConcurrency},
		Cache:   priceCache,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/price", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleGetPrice(w, r, svc)
	})
	mux.HandleFunc("/api/prices", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleBatchPrices(w, r, svc)
	})
	mux.HandleFunc("/api/cache", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		svc.ClearAllCaches(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, svc.GetCacheStats(r.Context()))
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func handleGetPrice(w http.ResponseWriter, r *http.Request, svc *pricing.Service) {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		http.Error(w, "missing symbol query param", http.StatusBadRequest)
		return
	}
	kind, err := instrument.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()
	res, err := svc.GetPrice(ctx, instrument.Ref{ID: symbol, Kind: kind})
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type batchBody struct {
	Instruments []instrument.Ref `json:"instruments"`
}

type batchResponse struct {
	Prices []pricing.BatchItem `json:"prices"`
}

func handleBatchPrices(w http.ResponseWriter, r *http.Request, svc *pricing.Service) {
	var b batchBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(b.Instruments) == 0 {
		http.Error(w, "instruments cannot be empty", http.StatusBadRequest)
		return
	}
	if len(b.Instruments) > 1000 {
		http.Error(w, "too many instruments (max 1000)", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	// Per-item failures never fail the batch as a whole.
	writeJSON(w, http.StatusOK, batchResponse{Prices: svc.BatchGetPrices(ctx, b.Instruments)})
}

func statusForError(err error) int {
	var notFound *pricing.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var upstream *pricing.UpstreamError
	if errors.As(err, &upstream) {
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		// Basic CORS for browser usage; adjust as needed.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses the response when the client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
		next.ServeHTTP(gw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
