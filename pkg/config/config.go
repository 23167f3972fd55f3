// Package config reads runtime configuration from the environment with
// typed defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds runtime configuration for the server and worker binaries.
type Config struct {
	Address     string
	DBPath      string
	AgentURL    string
	RedisAddr   string
	SinkPath    string
	DownloadDir string

	BatchSize      int
	MaxAttempts    int
	Backoff        time.Duration
	IdleSleep      time.Duration
	SessionTimeout time.Duration
	LeaseTTL       time.Duration

	ResultCeiling int
	MaxRecords    int
	RateInterval  time.Duration
	CursorTTL     time.Duration
	DiscoveryCron string
}

const (
	defaultAddress        = ":8080"
	defaultDBPath         = "data/db/lien-queue.db"
	defaultSinkPath       = "data/liens.xlsx"
	defaultDownloadDir    = "data/downloads"
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultBackoff        = 5 * time.Minute
	defaultIdleSleep      = 2 * time.Second
	defaultSessionTimeout = 5 * time.Minute
	defaultLeaseTTL       = 10 * time.Minute
	defaultResultCeiling  = 1000
	defaultMaxRecords     = 1000
	defaultRateInterval   = 1200 * time.Millisecond
	defaultCursorTTL      = 24 * time.Hour
)

// Load reads configuration from LIENHARVEST_* environment variables,
// falling back to defaults.
func Load() *Config {
	return &Config{
		Address:     readEnv("LIENHARVEST_ADDRESS", defaultAddress),
		DBPath:      readEnv("LIENHARVEST_DB_PATH", defaultDBPath),
		AgentURL:    readEnv("LIENHARVEST_AGENT_URL", ""),
		RedisAddr:   readEnv("LIENHARVEST_REDIS_ADDR", ""),
		SinkPath:    readEnv("LIENHARVEST_SINK_PATH", defaultSinkPath),
		DownloadDir: readEnv("LIENHARVEST_DOWNLOAD_DIR", defaultDownloadDir),

		BatchSize:      parseInt("LIENHARVEST_BATCH_SIZE", defaultBatchSize),
		MaxAttempts:    parseInt("LIENHARVEST_MAX_ATTEMPTS", defaultMaxAttempts),
		Backoff:        parseDuration("LIENHARVEST_BACKOFF", defaultBackoff),
		IdleSleep:      parseDuration("LIENHARVEST_IDLE_SLEEP", defaultIdleSleep),
		SessionTimeout: parseDuration("LIENHARVEST_SESSION_TIMEOUT", defaultSessionTimeout),
		LeaseTTL:       parseDuration("LIENHARVEST_LEASE_TTL", defaultLeaseTTL),

		ResultCeiling: parseInt("LIENHARVEST_RESULT_CEILING", defaultResultCeiling),
		MaxRecords:    parseInt("LIENHARVEST_MAX_RECORDS", defaultMaxRecords),
		RateInterval:  parseDuration("LIENHARVEST_RATE_INTERVAL", defaultRateInterval),
		CursorTTL:     parseDuration("LIENHARVEST_CURSOR_TTL", defaultCursorTTL),
		DiscoveryCron: readEnv("LIENHARVEST_DISCOVERY_CRON", ""),
	}
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt(key string, def int) int {
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

func parseDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
