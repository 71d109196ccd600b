package embedding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig defines exponential backoff for transient failures.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Retrying repeats failed calls that look transient.
type Retrying struct {
	next   Embedder
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetrying wraps next with retry.
func NewRetrying(next Embedder, cfg RetryConfig, logger *slog.Logger) *Retrying {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	return &Retrying{next: next, cfg: cfg, logger: logger}
}

// Embed implements Embedder.
func (r *Retrying) Embed(ctx context.Context, text string) ([]float64, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = 0 // bounded by MaxRetries and ctx

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxRetries)), ctx)

	var vec []float64
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		var err error
		vec, err = r.next.Embed(ctx, text)
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		if r.logger != nil {
			r.logger.Debug("retrying embedding request",
				"attempt", attempt, "wait", wait, "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// Model implements Embedder.
func (r *Retrying) Model() string { return r.next.Model() }

// IsRetryable reports whether err is worth another attempt: throttling,
// server errors and transport failures are; client errors, an open breaker
// and context cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
