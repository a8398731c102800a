package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL   string
	DBMaxConns    int32
	StoreTimeout  time.Duration
	MigrationsDir string
	ServerAddr    string
	LogLevel      zerolog.Level

	SweepInterval time.Duration
	SweepBatch    int

	// Optional fan-out. Empty disables the integration.
	NATSURL        string
	RedisURL       string
	NotifyDedupTTL time.Duration
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "companion_hub")
		pass := getenv("POSTGRES_PASSWORD", "companion_hub_pass")
		db := getenv("POSTGRES_DB", "companion_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	level, err := zerolog.ParseLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		DatabaseURL:    dsn,
		DBMaxConns:     int32(parseInt(getenv("DB_MAX_CONNS", "10"), 10)),
		StoreTimeout:   parseDuration(getenv("STORE_TIMEOUT", "5s"), 5*time.Second),
		MigrationsDir:  os.Getenv("MIGRATIONS_DIR"),
		ServerAddr:     getenv("SERVER_ADDR", "0.0.0.0:8080"),
		LogLevel:       level,
		SweepInterval:  parseDuration(getenv("SWEEP_INTERVAL", "1m"), time.Minute),
		SweepBatch:     parseInt(getenv("SWEEP_BATCH", "100"), 100),
		NATSURL:        os.Getenv("NATS_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		NotifyDedupTTL: parseDuration(getenv("NOTIFY_DEDUPE_TTL", "10m"), 10*time.Minute),
	}
	if cfg.SweepBatch <= 0 {
		return nil, fmt.Errorf("SWEEP_BATCH must be positive, got %d", cfg.SweepBatch)
	}
	if cfg.DBMaxConns <= 0 {
		return nil, fmt.Errorf("DB_MAX_CONNS must be positive, got %d", cfg.DBMaxConns)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
