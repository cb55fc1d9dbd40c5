package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProgressConfig holds the progress service's own settings, on top of the
// shared platform config (SERVICE_NAME, HTTP_ADDR, LOG_LEVEL, DATABASE_URL,
// NATS_URL).
type ProgressConfig struct {
	// JWTSecret verifies bearer tokens minted by the auth backend.
	JWTSecret []byte
	// CatalogBaseURL is the external video platform's content API.
	CatalogBaseURL string
	// RedisURL enables the catalog episode cache when set.
	RedisURL string
	// CatalogCacheTTL bounds staleness of cached episode lists.
	CatalogCacheTTL time.Duration
	// RateLimitPerSec / RateLimitBurst shape the write-endpoint limiter.
	RateLimitPerSec float64
	RateLimitBurst  int
	// AsyncWrites routes progress reports through JetStream instead of
	// writing synchronously. On by default; the worker must be running.
	AsyncWrites bool
	// NoRewatchFallback suppresses the series-complete re-watch answer.
	NoRewatchFallback bool
}

func LoadProgress() (ProgressConfig, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return ProgressConfig{}, errors.New("JWT_SECRET is required")
	}
	catalogURL := strings.TrimSpace(os.Getenv("CATALOG_BASE_URL"))
	if catalogURL == "" {
		return ProgressConfig{}, errors.New("CATALOG_BASE_URL is required")
	}

	cfg := ProgressConfig{
		JWTSecret:         []byte(secret),
		CatalogBaseURL:    catalogURL,
		RedisURL:          strings.TrimSpace(os.Getenv("REDIS_URL")),
		CatalogCacheTTL:   envDuration("CATALOG_CACHE_TTL", 2*time.Minute),
		RateLimitPerSec:   envFloat("RATE_LIMIT_PER_SEC", 5),
		RateLimitBurst:    envIntDefault("RATE_LIMIT_BURST", 10),
		AsyncWrites:       envBoolDefault("PROGRESS_ASYNC_WRITES", true),
		NoRewatchFallback: envBool("NO_REWATCH_FALLBACK"),
	}
	return cfg, nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes"
}
