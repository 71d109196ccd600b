package semcache

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/semcache/internal/cache"
	"github.com/blueberrycongee/semcache/internal/metrics"
	"github.com/blueberrycongee/semcache/internal/observability"
)

// Config holds all configuration for a Cache.
type Config struct {
	// TTL applies to every entry. Zero disables expiration.
	TTL time.Duration

	// SweepInterval is how often expired entries are physically removed.
	// Zero disables the background sweep; reads stay correct either way.
	SweepInterval time.Duration

	// SnapshotFormat selects the encoding used by Dump and DumpTo.
	// Load detects the format on its own.
	SnapshotFormat SnapshotFormat

	// Logging
	Logger *slog.Logger

	// Observability
	Registerer prometheus.Registerer
	Tracer     trace.Tracer

	// Clock returns the current time. Tests replace it to drive TTLs.
	Clock func() time.Time
}

// Option is a function that configures a Cache.
type Option func(*Config)

// defaultConfig returns sensible defaults.
func defaultConfig() *Config {
	return &Config{
		TTL:            0,
		SweepInterval:  time.Minute,
		SnapshotFormat: SnapshotArrow,
		Logger:         observability.DiscardLogger(),
		Clock:          cache.SystemClock,
	}
}

// WithTTL sets the cache-wide time to live. Negative values are treated as
// zero, which means entries never expire.
func WithTTL(ttl time.Duration) Option {
	return func(c *Config) {
		if ttl < 0 {
			ttl = 0
		}
		c.TTL = ttl
	}
}

// WithTTLSeconds sets the time to live in whole seconds.
//
// Example:
//
//	c := semcache.New(semcache.WithTTLSeconds(3600))
func WithTTLSeconds(seconds uint64) Option {
	const maxSeconds = uint64(1<<63-1) / uint64(time.Second)
	if seconds > maxSeconds {
		seconds = maxSeconds
	}
	return WithTTL(time.Duration(seconds) * time.Second)
}

// WithSweepInterval sets how often expired entries are reclaimed.
// Zero disables the background sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Config) {
		c.SweepInterval = d
	}
}

// WithSnapshotFormat selects the format written by Dump.
func WithSnapshotFormat(f SnapshotFormat) Option {
	return func(c *Config) {
		c.SnapshotFormat = f
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithMetrics registers Prometheus collectors for this cache on reg.
// Each cache needs its own registry or a prometheus.WrapRegistererWith
// wrapper carrying distinguishing labels.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = reg
	}
}

// WithTracer enables spans for GetOrCompute and snapshot operations.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Config) {
		c.Tracer = tracer
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

func (c *Config) metrics() *metrics.Metrics {
	if c.Registerer == nil {
		return nil
	}
	return metrics.New(c.Registerer)
}
