package app

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration shared by the API server and the
// worker. It is read from the environment, optionally seeded from .env.
type Config struct {
	Env      string
	LogLevel string

	DatabaseURL string
	DBMaxConns  int

	// API server.
	Port            string
	ShutdownTimeout time.Duration

	// Ledger.
	OwnerStrategy string

	// Worker.
	RedisAddress  string
	RedisPassword string
	SweepLockTTL  time.Duration
	SweepInterval time.Duration
	RelayInterval time.Duration
	RelayBatch    int
}

// Development reports whether APP_ENV selects development mode.
func (c Config) Development() bool { return c.Env == "development" }

// LoadConfig reads the environment. A missing .env file is not an error;
// real deployments inject the variables directly. dbMaxConns is the pool
// size used when DB_MAX_CONNS is unset.
func LoadConfig(dbMaxConns int) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:             envString("APP_ENV", "development"),
		LogLevel:        envString("LOG_LEVEL", "info"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBMaxConns:      envInt("DB_MAX_CONNS", dbMaxConns),
		Port:            envString("APP_PORT", "8080"),
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		OwnerStrategy:   envString("GRNI_OWNER_STRATEGY", "random"),
		RedisAddress:    os.Getenv("REDIS_ADDRESS"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		SweepLockTTL:    envDuration("GRNI_SWEEP_LOCK_TTL", 10*time.Minute),
		SweepInterval:   envDuration("GRNI_SWEEP_INTERVAL", time.Hour),
		RelayInterval:   envDuration("GRNI_RELAY_INTERVAL", 5*time.Second),
		RelayBatch:      envInt("GRNI_RELAY_BATCH", 50),
	}
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Malformed numbers and durations fall back to def.

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}
