package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; DATABASE_URL is required for the
// postgres driver.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64

	// Storage
	StoreDriver   string
	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	SQLitePath    string
	MigrationsDir string

	// Platform (Graph API). Publishing is disabled when the page id or
	// access token is empty; reconciliation still works for posts that
	// already carry an external ref.
	GraphBaseURL     string
	GraphPageID      string
	GraphAccessToken string
	GraphTimeout     time.Duration

	// Asset host
	AssetUploadURL    string
	AssetUploadPreset string
	AssetTimeout      time.Duration

	// Rate limiting: maximum platform requests per second, per operation
	StatusRateLimit  int
	PublishRateLimit int

	// Reconciler
	ReconcileSchedule    string
	ReconcileWorkers     int
	ReconcileItemTimeout time.Duration
	RetryBackoffBase     time.Duration
	RetryBackoffMax      time.Duration

	// Scheduling policy: the earliest allowed publish time is now + MinScheduleLead.
	MinScheduleLead time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxUploadBytes:  int64(getInt("MAX_UPLOAD_BYTES", 10<<20)),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DBMaxConns:    int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:    int32(getInt("DB_MIN_CONNS", 2)),
		SQLitePath:    getEnv("SQLITE_PATH", "data/quicksched.db"),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),

		GraphBaseURL:     strings.TrimRight(getEnv("GRAPH_BASE_URL", "https://graph.facebook.com/v22.0"), "/"),
		GraphPageID:      os.Getenv("GRAPH_PAGE_ID"),
		GraphAccessToken: os.Getenv("GRAPH_ACCESS_TOKEN"),
		GraphTimeout:     getDuration("GRAPH_TIMEOUT", 10*time.Second),

		AssetUploadURL:    os.Getenv("ASSET_UPLOAD_URL"),
		AssetUploadPreset: os.Getenv("ASSET_UPLOAD_PRESET"),
		AssetTimeout:      getDuration("ASSET_TIMEOUT", 30*time.Second),

		StatusRateLimit:  getInt("STATUS_RATE_LIMIT", 10),
		PublishRateLimit: getInt("PUBLISH_RATE_LIMIT", 2),

		ReconcileSchedule:    getEnv("RECONCILE_SCHEDULE", "@every 30s"),
		ReconcileWorkers:     getInt("RECONCILE_WORKERS", 4),
		ReconcileItemTimeout: getDuration("RECONCILE_ITEM_TIMEOUT", 15*time.Second),
		RetryBackoffBase:     getDuration("RETRY_BACKOFF_BASE", 30*time.Second),
		RetryBackoffMax:      getDuration("RETRY_BACKOFF_MAX", 10*time.Minute),

		MinScheduleLead: getDuration("MIN_SCHEDULE_LEAD", 30*time.Minute),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PublishingEnabled reports whether posts can be submitted to the platform.
func (c *Config) PublishingEnabled() bool {
	return c.GraphPageID != "" && c.GraphAccessToken != ""
}

// StatusChecksEnabled reports whether the publish-status oracle can be queried.
func (c *Config) StatusChecksEnabled() bool {
	return c.GraphAccessToken != ""
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver)
	}
	if c.ReconcileWorkers < 1 {
		return fmt.Errorf("RECONCILE_WORKERS must be at least 1")
	}
	if c.StatusRateLimit < 1 || c.PublishRateLimit < 1 {
		return fmt.Errorf("rate limits must be at least 1 request per second")
	}
	if c.RetryBackoffBase <= 0 || c.RetryBackoffMax < c.RetryBackoffBase {
		return fmt.Errorf("RETRY_BACKOFF_MAX must be >= RETRY_BACKOFF_BASE > 0")
	}
	for name, d := range map[string]time.Duration{
		"RECONCILE_ITEM_TIMEOUT": c.ReconcileItemTimeout,
		"GRAPH_TIMEOUT":          c.GraphTimeout,
		"ASSET_TIMEOUT":          c.AssetTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.MinScheduleLead < 0 {
		return fmt.Errorf("MIN_SCHEDULE_LEAD must not be negative")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
