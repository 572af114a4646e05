package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Cache struct {
	// FreshnessWindowMin is the maximum age in minutes at which a cached
	// price is served without re-fetching.
	FreshnessWindowMin int `json:"freshness_window_min"`
	// PostgresDSN enables the durable cache tier. Empty means in-process only.
	PostgresDSN string `json:"postgres_dsn"`
}

type Quote struct {
	Endpoint              string `json:"endpoint"`
	APIKey                string `json:"api_key"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
	MaxConcurrency        int    `json:"max_concurrency"`
}

type Nav struct {
	Endpoint       string `json:"endpoint"`
	SnapshotTTLSec int    `json:"snapshot_ttl_sec"`
}

type Batch struct {
	MaxConcurrency int `json:"max_concurrency"`
}

type Config struct {
	Server Server `json:"server"`
	Cache  Cache  `json:"cache"`
	Quote  Quote  `json:"quote"`
	Nav    Nav    `json:"nav"`
	Batch  Batch  `json:"batch"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Cache: Cache{
			FreshnessWindowMin: 60,
		},
		Quote: Quote{
			MaxRequestsPerMinute: 60,
			Burst:                5,
			MaxConcurrency:       4,
		},
		Nav: Nav{
			Endpoint:       "https://www.amfiindia.com/spages/NAVAll.txt",
			SnapshotTTLSec: 600,
		},
		Batch: Batch{MaxConcurrency: 8},
	}
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, it returns defaults. Environment variables override select fields
// for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("FRESHNESS_WINDOW_MIN"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Cache.FreshnessWindowMin = x
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Cache.PostgresDSN = v
	}
	if v := os.Getenv("QUOTE_ENDPOINT"); v != "" {
		cfg.Quote.Endpoint = v
	}
	if v := os.Getenv("QUOTE_API_KEY"); v != "" {
		cfg.Quote.APIKey = v
	}
	if v := os.Getenv("QUOTE_MAX_RPM"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Quote.MaxRequestsPerMinute = x
		}
	}
	if v := os.Getenv("QUOTE_MIN_INTERVAL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Quote.MinRequestIntervalSec = x
		}
	}
	if v := os.Getenv("QUOTE_BURST"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Quote.Burst = x
		}
	}
	if v := os.Getenv("QUOTE_MAX_CONCURRENCY"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Quote.MaxConcurrency = x
		}
	}
	if v := os.Getenv("NAV_ENDPOINT"); v != "" {
		cfg.Nav.Endpoint = v
	}
	if v := os.Getenv("NAV_SNAPSHOT_TTL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Nav.SnapshotTTLSec = x
		}
	}
	if v := os.Getenv("BATCH_MAX_CONCURRENCY"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Batch.MaxConcurrency = x
		}
	}
}
