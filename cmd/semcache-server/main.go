// Package main is the entry point for the semcache server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blueberrycongee/semcache"
	"github.com/blueberrycongee/semcache/internal/api"
	"github.com/blueberrycongee/semcache/internal/config"
	"github.com/blueberrycongee/semcache/internal/healthcheck"
	"github.com/blueberrycongee/semcache/internal/keygen"
	"github.com/blueberrycongee/semcache/internal/metrics"
	"github.com/blueberrycongee/semcache/internal/observability"
	"github.com/blueberrycongee/semcache/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(semcache.Version)
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Bootstrap logger until the configured one exists
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfgManager, err := config.NewManager(configPath, bootLogger)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	defer cfgManager.Close()
	cfg := cfgManager.Get()

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:      observability.ParseLevel(cfg.Logging.Level),
		Output:     os.Stdout,
		AddSource:  cfg.Logging.AddSource,
		JSONFormat: cfg.Logging.Format != "text",
	})
	slog.SetDefault(logger.Slog())
	log := logger.Slog()

	log.Info("starting semcache server", "version", semcache.Version, "config", configPath)
	for _, w := range cfg.Warnings() {
		log.Warn("configuration warning", "code", w.Code, "message", w.Message)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     semcache.Version,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	// Metrics registry
	var reg *prometheus.Registry
	var httpMetrics *metrics.HTTPMetrics
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		httpMetrics = metrics.NewHTTP(reg)
	}

	// Cache
	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}
	c := semcache.New(buildCacheOptions(&cfg.Cache, log, registerer, tp.Tracer())...)
	defer c.Close()

	embedder, err := buildEmbedder(&cfg.Embedding, log)
	if err != nil {
		return fmt.Errorf("init embedding backend: %w", err)
	}
	if embedder != nil {
		log.Info("embedding backend enabled", "model", embedder.Model())
	}

	// Snapshots
	store, closeStore, err := buildSnapshotStore(ctx, &cfg.Snapshot)
	if err != nil {
		return fmt.Errorf("init snapshot store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("snapshot store close failed", "error", err)
		}
	}()

	prober := healthcheck.NewProber(healthcheck.Config{
		Enabled:          cfg.Health.Enabled,
		Interval:         cfg.Health.Interval,
		Timeout:          cfg.Health.Timeout,
		FailureThreshold: cfg.Health.FailureThreshold,
	}, log)
	if pinger, ok := store.(snapshot.Pinger); ok {
		prober.Register("snapshot_store", pinger.Ping)
	}
	prober.Start(ctx)

	var snapshots api.Snapshotter
	var scheduler *snapshot.Scheduler
	if store != nil {
		scheduler = snapshot.NewScheduler(c, store, snapshot.SchedulerConfig{
			Name:       cfg.Snapshot.Name,
			Interval:   cfg.Snapshot.Interval,
			Timeout:    cfg.Snapshot.Timeout,
			SaveOnStop: cfg.Snapshot.SaveOnStop,
		}, log)
		snapshots = scheduler

		if cfg.Snapshot.RestoreOnStart {
			if _, err := scheduler.Restore(ctx); err != nil {
				log.Error("snapshot restore failed, starting empty", "error", err)
			}
		}
		scheduler.Start()
	}

	// HTTP
	handler := api.NewHandler(c, log, &api.Config{
		Embedder:    embedder,
		Keys:        keygen.New(cfg.Cache.KeyPrefix),
		Snapshots:   snapshots,
		Health:      prober,
		MaxBodySize: cfg.Server.MaxBodyBytes,
		Threshold:   cfg.Cache.Threshold,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	if reg != nil {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	cfgManager.OnChange(func(next *config.Config) {
		logger.SetLevel(observability.ParseLevel(next.Logging.Level))
		handler.SetThreshold(next.Cache.Threshold)
		log.Info("runtime settings updated", "log_level", next.Logging.Level, "threshold", next.Cache.Threshold)
	})
	if err := cfgManager.Watch(ctx); err != nil {
		log.Warn("config hot-reload disabled", "error", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      buildMiddlewareStack(httpMetrics, tp.Tracer())(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	handler.SetReady(true)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info("shutting down server...")
	handler.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			log.Error("final snapshot failed", "error", err)
		}
	}

	log.Info("server stopped", "stats", c.Stats())
	return nil
}
