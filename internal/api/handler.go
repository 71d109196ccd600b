// Package api provides the HTTP front end of the semantic cache server.
package api //nolint:revive // package name is intentional

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/semcache"
	"github.com/blueberrycongee/semcache/internal/embedding"
	"github.com/blueberrycongee/semcache/internal/healthcheck"
	"github.com/blueberrycongee/semcache/internal/keygen"
	"github.com/blueberrycongee/semcache/internal/observability"
	cacheerrors "github.com/blueberrycongee/semcache/pkg/errors"
)

// Snapshotter saves and restores the cache on demand.
type Snapshotter interface {
	SaveNow(ctx context.Context) (int, error)
	Restore(ctx context.Context) (int, error)
}

// HealthReporter summarizes dependency probes for the readiness endpoint.
type HealthReporter interface {
	Healthy() bool
	Results() []healthcheck.Result
}

// Config contains optional collaborators for Handler.
type Config struct {
	Embedder    embedding.Embedder // enables POST /v1/embed
	Keys        *keygen.Generator
	Snapshots   Snapshotter // enables the snapshot endpoints
	Health      HealthReporter
	MaxBodySize int64
	Threshold   float64 // default similarity threshold, 0 uses DefaultThreshold
	// EmbedTimeout bounds one shared embedding computation; 0 uses
	// DefaultEmbedTimeout.
	EmbedTimeout time.Duration
}

// Handler serves the cache over HTTP.
type Handler struct {
	cache        *semcache.Cache
	embedder     embedding.Embedder
	keys         *keygen.Generator
	snapshots    Snapshotter
	health       HealthReporter
	logger       *slog.Logger
	maxBodySize  int64
	embedTimeout time.Duration

	threshold atomic.Uint64 // math.Float64bits
	ready     atomic.Bool
}

// NewHandler creates a handler for c. cfg may be nil.
func NewHandler(c *semcache.Cache, logger *slog.Logger, cfg *Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		cache:        c,
		logger:       logger,
		maxBodySize:  DefaultMaxBodySize,
		embedTimeout: DefaultEmbedTimeout,
		keys:         keygen.New(""),
	}
	threshold := DefaultThreshold
	if cfg != nil {
		h.embedder = cfg.Embedder
		h.snapshots = cfg.Snapshots
		h.health = cfg.Health
		if cfg.Keys != nil {
			h.keys = cfg.Keys
		}
		if cfg.MaxBodySize > 0 {
			h.maxBodySize = cfg.MaxBodySize
		}
		if cfg.EmbedTimeout > 0 {
			h.embedTimeout = cfg.EmbedTimeout
		}
		if cfg.Threshold != 0 {
			threshold = cfg.Threshold
		}
	}
	h.SetThreshold(threshold)
	return h
}

// SetThreshold changes the default similarity threshold at runtime.
func (h *Handler) SetThreshold(t float64) {
	h.threshold.Store(math.Float64bits(t))
}

// Threshold returns the default similarity threshold.
func (h *Handler) Threshold() float64 {
	return math.Float64frombits(h.threshold.Load())
}

// SetReady flips the readiness probe.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	if id := observability.RequestIDFromContext(r.Context()); id != "" {
		return h.logger.With("request_id", id)
	}
	return h.logger
}

// decode reads a JSON body into v, enforcing the body size limit.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.writeErrorMessage(w, http.StatusRequestEntityTooLarge, "request body too large", errTypeRequestTooLong)
			return false
		}
		h.writeError(w, r, cacheerrors.NewInvalidRequestError("failed to read request body"))
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		h.writeError(w, r, cacheerrors.NewInvalidRequestError("invalid JSON body"))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps err to a status code. Messages of errors that are not a
// *CacheError are logged, never returned to the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *cacheerrors.CacheError
	if !errors.As(err, &ce) {
		h.log(r).Error("request failed", "path", r.URL.Path, "error", err)
		h.writeErrorMessage(w, http.StatusInternalServerError, "internal error", errTypeInternal)
		return
	}
	status := ce.HTTPStatusCode()
	if status >= http.StatusInternalServerError {
		h.log(r).Error("request failed", "path", r.URL.Path, "error", err)
	}
	h.writeErrorMessage(w, status, ce.Message, ce.Type)
}

func (h *Handler) writeErrorMessage(w http.ResponseWriter, status int, message, typ string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{Message: message, Type: typ},
	})
}

// validateVector rejects vectors the cache could store but never match.
func validateVector(v []float64) error {
	if len(v) == 0 {
		return cacheerrors.NewInvalidRequestError("vector must not be empty")
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return cacheerrors.NewInvalidRequestError("vector must contain finite numbers")
		}
	}
	return nil
}
