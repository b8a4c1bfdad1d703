package utils

import (
	"os"
	"strconv"
	"time"
)

// CrawlConfig collects the crawler's tunables. All values come from
// DLHUB_* env vars with sensible defaults for a local run.
type CrawlConfig struct {
	BaseURL      string        // catalog site root
	PageBudget   int           // max pages fetched per run
	ItemsPerPage int           // requested page size; also the short-page signal
	PageDelay    time.Duration // politeness delay between page fetches
	Concurrency  int           // per-page enrichment fan-out
	LockTTL      time.Duration // stale-lock takeover threshold
}

func LoadCrawlConfig() CrawlConfig {
	return CrawlConfig{
		BaseURL:      envString("DLHUB_BASE_URL", "https://www.dlsite.com"),
		PageBudget:   envInt("DLHUB_PAGE_BUDGET", 5),
		ItemsPerPage: envInt("DLHUB_ITEMS_PER_PAGE", 100),
		PageDelay:    envDuration("DLHUB_PAGE_DELAY", time.Second),
		Concurrency:  envInt("DLHUB_CONCURRENCY", 3),
		LockTTL:      envDuration("DLHUB_LOCK_TTL", 2*time.Hour),
	}
}

type APIConfig struct {
	Addr string
}

func LoadAPIConfig() APIConfig {
	return APIConfig{
		Addr: envString("DLHUB_ADDR", ":8080"),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
