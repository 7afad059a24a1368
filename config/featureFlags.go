package config

import (
	"os"
	"strings"
	"time"
)

const (
	StoreBackendMemory = "memory"
	StoreBackendJSON   = "json"
	StoreBackendMySQL  = "mysql"
)

// StoreBackend selects the document store.
//
// Set via env:
// - STORE_BACKEND=memory|json|mysql (default json)
func StoreBackend() string {
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND"))); v {
	case StoreBackendMemory, StoreBackendMySQL:
		return v
	default:
		return StoreBackendJSON
	}
}

// JSONStorePath is the file used by the json backend (JSON_STORE_PATH, default data/store.json).
func JSONStorePath() string {
	if v := strings.TrimSpace(os.Getenv("JSON_STORE_PATH")); v != "" {
		return v
	}
	return "data/store.json"
}

// DeleteBatchSize bounds how many documents a recursive delete loads per query
// (DELETE_BATCH_SIZE, default 100).
func DeleteBatchSize() int {
	if n := IntFromEnv("DELETE_BATCH_SIZE", 100); n > 0 {
		return n
	}
	return 100
}

// TransactionMaxAttempts bounds retries of conflicting store transactions
// (TRANSACTION_MAX_ATTEMPTS, default 5).
func TransactionMaxAttempts() int {
	if n := IntFromEnv("TRANSACTION_MAX_ATTEMPTS", 5); n > 0 {
		return n
	}
	return 5
}

// CacheLifespan is the stats cache TTL (CACHE_LIFESPAN in hours, default 1).
func CacheLifespan() time.Duration {
	n := IntFromEnv("CACHE_LIFESPAN", 1)
	if n <= 0 {
		n = 1
	}
	return time.Duration(n) * time.Hour
}

func IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}

// Port is the HTTP listen port: API_PORT_2, then Cloud Run's PORT, then 8080.
func Port() string {
	for _, key := range []string{"API_PORT_2", "PORT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return "8080"
}

// RateLimit reports whether the Redis limiter is on and its settings.
//
// Set via env:
// - RATE_LIMIT_ENABLED=true
// - RATE_LIMIT_WINDOW_SECONDS=60
// - RATE_LIMIT_MAX_REQUESTS=600
func RateLimit() (enabled bool, limit int64, window time.Duration) {
	enabled = strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true")
	limit = int64(IntFromEnv("RATE_LIMIT_MAX_REQUESTS", 600))
	if limit <= 0 {
		limit = 600
	}
	windowSec := IntFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)
	if windowSec <= 0 {
		windowSec = 60
	}
	return enabled, limit, time.Duration(windowSec) * time.Second
}
