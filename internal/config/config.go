// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load layers file and env on top.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error, severe.
	LogLevel string `koanf:"log_level"`

	// Addr is the listen address for the metrics/health endpoint, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects score/goal persistence: memory or postgres.
	StoreDriver string `koanf:"store_driver"`
	// PostgresDSN is required when StoreDriver is postgres.
	PostgresDSN string `koanf:"postgres_dsn"`

	// OrphanStore selects orphan persistence: memory or redis.
	OrphanStore string `koanf:"orphan_store"`
	// RedisAddr is required when OrphanStore is redis.
	RedisAddr string `koanf:"redis_addr"`
	// RedisPrefix namespaces orphan keys.
	RedisPrefix string `koanf:"redis_prefix"`

	// OrphanThreshold is the number of distinct users that must submit the same
	// unresolved chart before it is admitted to the catalog.
	OrphanThreshold int `koanf:"orphan_threshold"`
	// DeorphanIntervalS schedules the periodic deorphan sweep; 0 disables it.
	DeorphanIntervalS int `koanf:"deorphan_interval_s"`

	// InsertBatchSize is the insert queue size that triggers an automatic flush.
	InsertBatchSize int `koanf:"insert_batch_size"`

	// GoalConcurrency bounds concurrent goal evaluations per user.
	GoalConcurrency int `koanf:"goal_concurrency"`

	// WebhookURL receives goal events; empty disables delivery.
	WebhookURL string `koanf:"webhook_url"`
	// WebhookTimeoutMS bounds a single webhook delivery.
	WebhookTimeoutMS int `koanf:"webhook_timeout_ms"`

	// JobQueueSize bounds the background job queue.
	JobQueueSize int `koanf:"job_queue_size"`
	// WorkerCount sets the number of background workers.
	WorkerCount int `koanf:"worker_count"`

	// CatalogSeed is a YAML file with songs, charts and folders.
	CatalogSeed string `koanf:"catalog_seed"`

	// KaiBaseURL is the partner API root used by api/kai-* imports.
	KaiBaseURL string `koanf:"kai_base_url"`
	// KaiRequestTimeoutMS bounds each page fetch.
	KaiRequestTimeoutMS int `koanf:"kai_request_timeout_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		StoreDriver:         DriverMemory,
		OrphanStore:         DriverMemory,
		RedisPrefix:         "scorepipe",
		OrphanThreshold:     5,
		DeorphanIntervalS:   3600,
		InsertBatchSize:     500,
		GoalConcurrency:     8,
		WebhookTimeoutMS:    5000,
		JobQueueSize:        10_000,
		WorkerCount:         runtime.NumCPU(),
		KaiRequestTimeoutMS: 30_000,
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for store_driver=postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	switch c.OrphanStore {
	case DriverMemory:
	case DriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for orphan_store=redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown orphan_store %q", ErrInvalidConfig, c.OrphanStore)
	}
	if c.OrphanThreshold < 1 {
		return fmt.Errorf("%w: orphan_threshold must be at least 1", ErrInvalidConfig)
	}
	if c.InsertBatchSize < 1 {
		return fmt.Errorf("%w: insert_batch_size must be at least 1", ErrInvalidConfig)
	}
	if c.DeorphanIntervalS < 0 {
		return fmt.Errorf("%w: deorphan_interval_s must not be negative", ErrInvalidConfig)
	}
	return nil
}

// WebhookTimeout returns WebhookTimeoutMS as a duration.
func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutMS) * time.Millisecond
}

// KaiRequestTimeout returns KaiRequestTimeoutMS as a duration.
func (c *Config) KaiRequestTimeout() time.Duration {
	return time.Duration(c.KaiRequestTimeoutMS) * time.Millisecond
}

// DeorphanInterval returns DeorphanIntervalS as a duration.
func (c *Config) DeorphanInterval() time.Duration {
	return time.Duration(c.DeorphanIntervalS) * time.Second
}
