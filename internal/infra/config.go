package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents service configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	GeoIPDBPath string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Admission policy for the ingestion endpoint: RateLimitPerWindow batches
	// per ephemeral identifier per RateLimitWindow.
	RateLimitPerWindow int
	RateLimitWindow    time.Duration

	// KAnonymityFloor is the minimum estimated contributor count a daily
	// metric needs before any read path may expose it.
	KAnonymityFloor int

	// RetentionDays bounds how long daily counters and contributor filters
	// are kept before the sweep deletes them outright.
	RetentionDays int

	SuppressorInterval time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerWindow: getEnvInt("RATE_LIMIT_PER_WINDOW", 1),
		RateLimitWindow:    time.Second * time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)),
		KAnonymityFloor:    getEnvInt("K_ANONYMITY_FLOOR", 20),
		RetentionDays:      getEnvInt("RETENTION_DAYS", 90),
		SuppressorInterval: time.Hour * time.Duration(getEnvInt("SUPPRESSOR_INTERVAL_HOURS", 24)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RateLimitPerWindow < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_WINDOW must be at least 1")
	}
	if cfg.KAnonymityFloor < 1 {
		return nil, fmt.Errorf("K_ANONYMITY_FLOOR must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
