// Package embedding provides the clients that turn text into vectors on a
// cache miss, plus decorators for rate limiting, circuit breaking and retry.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Embedder generates embedding vectors for text.
type Embedder interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Model returns the name of the embedding model being used.
	Model() string
}

// Config describes an OpenAI-compatible embedding backend and the
// resilience policy wrapped around it.
type Config struct {
	APIBase string
	APIKey  string
	Model   string
	Timeout time.Duration

	// RequestsPerSecond caps outbound calls; zero means unlimited.
	RequestsPerSecond float64
	Burst             int

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// BreakerFailures consecutive failures open the breaker for
	// BreakerTimeout. Zero disables the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		APIBase:         "https://api.openai.com/v1",
		Model:           "text-embedding-3-small",
		Timeout:         30 * time.Second,
		Burst:           1,
		MaxRetries:      3,
		InitialBackoff:  200 * time.Millisecond,
		MaxBackoff:      5 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// New builds the full client stack:
// retry -> circuit breaker -> rate limiter -> HTTP.
// Every retry attempt passes through the breaker and the limiter.
func New(cfg Config, logger *slog.Logger) (Embedder, error) {
	base, err := NewOpenAIEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var e Embedder = base
	if cfg.RequestsPerSecond > 0 {
		e = NewRateLimited(e, cfg.RequestsPerSecond, cfg.Burst)
	}
	if cfg.BreakerFailures > 0 {
		e = NewBreaker(e, BreakerConfig{
			Name:             "embedding:" + cfg.Model,
			ConsecutiveFails: cfg.BreakerFailures,
			Timeout:          cfg.BreakerTimeout,
		}, logger)
	}
	if cfg.MaxRetries > 0 {
		e = NewRetrying(e, RetryConfig{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.InitialBackoff,
			MaxInterval:     cfg.MaxBackoff,
		}, logger)
	}
	return e, nil
}

// StatusError is returned for non-200 responses from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding failed: status=%d, body=%s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
