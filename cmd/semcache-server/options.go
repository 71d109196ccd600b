package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/semcache"
	"github.com/blueberrycongee/semcache/internal/config"
	"github.com/blueberrycongee/semcache/internal/embedding"
	"github.com/blueberrycongee/semcache/internal/snapshot"
)

func buildCacheOptions(cfg *config.CacheConfig, logger *slog.Logger, reg prometheus.Registerer, tracer trace.Tracer) []semcache.Option {
	opts := []semcache.Option{
		semcache.WithTTL(cfg.TTL),
		semcache.WithSweepInterval(cfg.SweepInterval),
		semcache.WithLogger(logger),
		semcache.WithTracer(tracer),
	}
	if cfg.SnapshotFormat != "" {
		opts = append(opts, semcache.WithSnapshotFormat(semcache.SnapshotFormat(strings.ToLower(cfg.SnapshotFormat))))
	}
	if reg != nil {
		opts = append(opts, semcache.WithMetrics(reg))
	}
	return opts
}

// buildEmbedder returns nil when the embedding backend is disabled.
func buildEmbedder(cfg *config.EmbeddingConfig, logger *slog.Logger) (embedding.Embedder, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return embedding.New(embedding.Config{
		APIBase:           cfg.APIBase,
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		MaxRetries:        cfg.MaxRetries,
		InitialBackoff:    cfg.InitialBackoff,
		MaxBackoff:        cfg.MaxBackoff,
		BreakerFailures:   cfg.BreakerFailures,
		BreakerTimeout:    cfg.BreakerTimeout,
	}, logger)
}

// buildSnapshotStore returns the configured store and a function releasing
// its connections. It returns a nil store when snapshots are disabled.
func buildSnapshotStore(ctx context.Context, cfg *config.SnapshotConfig) (snapshot.Store, func() error, error) {
	noop := func() error { return nil }
	if !cfg.Enabled {
		return nil, noop, nil
	}

	switch cfg.Backend {
	case config.BackendFile, "":
		s, err := snapshot.NewFileStore(cfg.Dir)
		return s, noop, err
	case config.BackendRedis:
		s, err := snapshot.NewRedisStore(cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case config.BackendS3:
		s, err := snapshot.NewS3Store(ctx, cfg.S3)
		return s, noop, err
	default:
		return nil, noop, fmt.Errorf("unsupported snapshot backend: %s", cfg.Backend)
	}
}
