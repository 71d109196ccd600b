// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blueberrycongee/semcache/internal/snapshot"
)

// Config represents the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Health    HealthConfig    `yaml:"healthcheck"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// CacheConfig configures the semantic cache itself.
type CacheConfig struct {
	TTL            time.Duration `yaml:"ttl"` // 0 disables expiry
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SnapshotFormat string        `yaml:"snapshot_format"` // arrow, json
	// Threshold is the default cosine similarity for search requests that
	// do not set one. Hot-reloadable.
	Threshold float64 `yaml:"threshold"`
	KeyPrefix string  `yaml:"key_prefix"`
}

// EmbeddingConfig configures the upstream embedding backend used by
// /v1/embed.
type EmbeddingConfig struct {
	Enabled           bool          `yaml:"enabled"`
	APIBase           string        `yaml:"api_base"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
	BreakerTimeout    time.Duration `yaml:"breaker_timeout"`
}

// Snapshot backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendS3    = "s3"
)

// SnapshotConfig controls where and how often snapshots are stored.
type SnapshotConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Backend        string        `yaml:"backend"` // file, redis, s3
	Name           string        `yaml:"name"`
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	RestoreOnStart bool          `yaml:"restore_on_start"`
	SaveOnStop     bool          `yaml:"save_on_stop"`

	Dir   string               `yaml:"dir"`
	Redis snapshot.RedisConfig `yaml:"redis"`
	S3    snapshot.S3Config    `yaml:"s3"`
}

// HealthConfig controls dependency probes behind /health/ready.
type HealthConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`  // debug, info, warn, error
	Format    string `yaml:"format"` // json, text
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP endpoint (e.g., "localhost:4317")
	ServiceName string  `yaml:"service_name"` // Service name for traces
	SampleRate  float64 `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	Insecure    bool    `yaml:"insecure"`     // Use insecure connection (no TLS)
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    8 << 20,
		},
		Cache: CacheConfig{
			TTL:            time.Hour,
			SweepInterval:  time.Minute,
			SnapshotFormat: "arrow",
			Threshold:      0.9,
		},
		Embedding: EmbeddingConfig{
			Enabled:         false,
			APIBase:         "https://api.openai.com/v1",
			Model:           "text-embedding-3-small",
			Timeout:         30 * time.Second,
			Burst:           1,
			MaxRetries:      3,
			InitialBackoff:  200 * time.Millisecond,
			MaxBackoff:      5 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Enabled:        false,
			Backend:        BackendFile,
			Name:           "semcache.snapshot",
			Interval:       5 * time.Minute,
			Timeout:        time.Minute,
			RestoreOnStart: true,
			SaveOnStop:     true,
			Dir:            "data",
			Redis:          snapshot.DefaultRedisConfig(),
		},
		Health: HealthConfig{
			Enabled:          true,
			Interval:         30 * time.Second,
			Timeout:          5 * time.Second,
			FailureThreshold: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "semcache",
			SampleRate:  1.0,
			Insecure:    true,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes cannot be negative")
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl cannot be negative")
	}
	if c.Cache.SweepInterval < 0 {
		return fmt.Errorf("cache.sweep_interval cannot be negative")
	}
	switch c.Cache.SnapshotFormat {
	case "", "arrow", "json":
	default:
		return fmt.Errorf("cache.snapshot_format: unknown format %q", c.Cache.SnapshotFormat)
	}
	if c.Cache.Threshold < -1 || c.Cache.Threshold > 1 {
		return fmt.Errorf("cache.threshold must be within [-1, 1], got %v", c.Cache.Threshold)
	}

	if c.Embedding.Enabled {
		if c.Embedding.APIBase == "" {
			return fmt.Errorf("embedding.api_base is required when embedding is enabled")
		}
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required when embedding is enabled")
		}
		if c.Embedding.RequestsPerSecond < 0 {
			return fmt.Errorf("embedding.requests_per_second cannot be negative")
		}
		if c.Embedding.MaxRetries < 0 {
			return fmt.Errorf("embedding.max_retries cannot be negative")
		}
	}

	if c.Snapshot.Enabled {
		if c.Snapshot.Interval < 0 {
			return fmt.Errorf("snapshot.interval cannot be negative")
		}
		switch c.Snapshot.Backend {
		case BackendFile:
			if c.Snapshot.Dir == "" {
				return fmt.Errorf("snapshot.dir is required for the file backend")
			}
		case BackendRedis:
			r := c.Snapshot.Redis
			if r.Addr == "" && len(r.ClusterAddrs) == 0 && len(r.SentinelAddrs) == 0 {
				return fmt.Errorf("snapshot.redis: addr, cluster_addrs or sentinel_addrs is required")
			}
			if len(r.SentinelAddrs) > 0 && r.SentinelMaster == "" {
				return fmt.Errorf("snapshot.redis.sentinel_master is required with sentinel_addrs")
			}
		case BackendS3:
			if c.Snapshot.S3.Bucket == "" {
				return fmt.Errorf("snapshot.s3.bucket is required for the s3 backend")
			}
		default:
			return fmt.Errorf("snapshot.backend: unknown backend %q", c.Snapshot.Backend)
		}
	}

	if c.Health.Enabled && c.Health.FailureThreshold < 0 {
		return fmt.Errorf("healthcheck.failure_threshold cannot be negative")
	}

	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
	}

	return nil
}

// Warning codes reported by Warnings.
const (
	WarningEmbeddingWithoutKey = "embedding_without_api_key"
	WarningSnapshotNoExpiry    = "snapshot_without_ttl"
	WarningSnapshotNoSchedule  = "snapshot_without_schedule"
)

// Warning describes a configuration that is valid but probably unintended.
type Warning struct {
	Code    string
	Message string
}

// Warnings reports suspicious but valid settings.
func (c *Config) Warnings() []Warning {
	var out []Warning
	if c.Embedding.Enabled && c.Embedding.APIKey == "" {
		out = append(out, Warning{
			Code:    WarningEmbeddingWithoutKey,
			Message: "embedding is enabled without an api_key; most providers will reject requests",
		})
	}
	if c.Snapshot.Enabled && c.Cache.TTL == 0 {
		out = append(out, Warning{
			Code:    WarningSnapshotNoExpiry,
			Message: "cache.ttl is 0, snapshots will keep every entry ever stored",
		})
	}
	if c.Snapshot.Enabled && c.Snapshot.Interval == 0 && !c.Snapshot.SaveOnStop {
		out = append(out, Warning{
			Code:    WarningSnapshotNoSchedule,
			Message: "snapshot is enabled but neither interval nor save_on_stop is set",
		})
	}
	return out
}
