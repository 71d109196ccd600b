package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/blueberrycongee/semcache"
	"github.com/blueberrycongee/semcache/internal/config"
	"github.com/blueberrycongee/semcache/internal/metrics"
	"github.com/blueberrycongee/semcache/internal/observability"
	"github.com/blueberrycongee/semcache/internal/snapshot"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildCacheOptions(t *testing.T) {
	cfg := config.DefaultConfig().Cache
	cfg.TTL = time.Minute
	cfg.SnapshotFormat = "JSON"
	reg := prometheus.NewRegistry()

	c := semcache.New(buildCacheOptions(&cfg, testLogger(), reg, noop.NewTracerProvider().Tracer("test"))...)
	defer c.Close()

	assert.Equal(t, time.Minute, c.TTL())
	c.Put("k", []float64{1})

	var buf strings.Builder
	_, err := c.DumpTo(context.Background(), &buf)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "json format expected")

	n, err := testutil.GatherAndCount(reg, "semcache_entries")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuildEmbedder(t *testing.T) {
	cfg := config.DefaultConfig().Embedding
	e, err := buildEmbedder(&cfg, testLogger())
	require.NoError(t, err)
	assert.Nil(t, e)

	cfg.Enabled = true
	cfg.APIBase = "http://localhost:1"
	cfg.Model = "m"
	e, err = buildEmbedder(&cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "m", e.Model())
}

func TestBuildSnapshotStore(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		cfg := config.DefaultConfig().Snapshot
		s, closeFn, err := buildSnapshotStore(ctx, &cfg)
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.NoError(t, closeFn())
	})

	t.Run("file", func(t *testing.T) {
		cfg := config.DefaultConfig().Snapshot
		cfg.Enabled = true
		cfg.Dir = t.TempDir()
		s, _, err := buildSnapshotStore(ctx, &cfg)
		require.NoError(t, err)
		assert.IsType(t, &snapshot.FileStore{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.DefaultConfig().Snapshot
		cfg.Enabled = true
		cfg.Backend = config.BackendRedis
		cfg.Redis.Addr = mr.Addr()
		s, closeFn, err := buildSnapshotStore(ctx, &cfg)
		require.NoError(t, err)
		assert.Equal(t, "redis", s.Kind())
		assert.NoError(t, closeFn())
	})

	t.Run("s3", func(t *testing.T) {
		t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
		cfg := config.DefaultConfig().Snapshot
		cfg.Enabled = true
		cfg.Backend = config.BackendS3
		cfg.S3 = snapshot.S3Config{Bucket: "b", Region: "us-east-1", AccessKeyID: "a", SecretKey: "s", Endpoint: "http://localhost:1"}
		s, _, err := buildSnapshotStore(ctx, &cfg)
		require.NoError(t, err)
		assert.Equal(t, "s3", s.Kind())
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.DefaultConfig().Snapshot
		cfg.Enabled = true
		cfg.Backend = "tape"
		_, _, err := buildSnapshotStore(ctx, &cfg)
		assert.Error(t, err)
	})
}

func TestMiddlewareStack(t *testing.T) {
	reg := prometheus.NewRegistry()
	hm := metrics.NewHTTP(reg)

	mux := http.NewServeMux()
	var seenID string
	mux.HandleFunc("GET /v1/entries/{key}", func(w http.ResponseWriter, r *http.Request) {
		seenID = observability.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	h := buildMiddlewareStack(hm, tp.Tracer("test"))(mux)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/entries/abc", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.NotEmpty(t, seenID)
	assert.Equal(t, seenID, rr.Header().Get(observability.RequestIDHeader))
	assert.Equal(t, 1.0, testutil.ToFloat64(hm.Requests.WithLabelValues("GET /v1/entries/{key}", "GET", "418")))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/entries/{key}", spans[0].Name)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind)
}

func TestMiddlewareStack_WithoutMetrics(t *testing.T) {
	h := buildMiddlewareStack(nil, nil)(http.NotFoundHandler())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
