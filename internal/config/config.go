// Package config loads process configuration from the environment. A local
// .env file is read when present; real deployments set variables directly.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port int

	DatabaseURL string
	RedisAddr   string

	// Worker poll backoff.
	PollBase time.Duration
	PollCap  time.Duration

	// Batch ingestion chunk size.
	ChunkSize int

	// Terminal-job retention for cleanup.
	RetentionDays int

	// Ordinance cache TTL.
	OrdinanceTTL time.Duration
}

func Load() (*Config, error) {
	// Missing .env is the normal case outside local dev.
	_ = godotenv.Load()

	cfg := &Config{
		Env:           getEnv("APP_ENV", "development"),
		Port:          getEnvInt("PORT", 8080),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		PollBase:      time.Duration(getEnvInt("POLL_BASE_SECONDS", 2)) * time.Second,
		PollCap:       time.Duration(getEnvInt("POLL_CAP_SECONDS", 30)) * time.Second,
		ChunkSize:     getEnvInt("INGEST_CHUNK_SIZE", 1000),
		RetentionDays: getEnvInt("JOB_RETENTION_DAYS", 30),
		OrdinanceTTL:  time.Duration(getEnvInt("ORDINANCE_TTL_HOURS", 168)) * time.Hour,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("missing env: DATABASE_URL")
	}
	return cfg, nil
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

var dsnPassword = regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)

// RedactDSN masks the password segment of a connection URL for logging.
func RedactDSN(dsn string) string {
	return dsnPassword.ReplaceAllString(dsn, `://$1:****@`)
}
