package embedding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	Name             string
	ConsecutiveFails uint32
	Timeout          time.Duration // how long the breaker stays open
	MaxRequests      uint32        // probes allowed while half-open
}

// Breaker stops calling a failing backend until it has had time to recover.
type Breaker struct {
	next Embedder
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next with a circuit breaker.
//
// Client errors (4xx other than 429) and context cancellation do not count
// as failures; they say nothing about the backend's health.
func NewBreaker(next Embedder, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.ConsecutiveFails == 0 {
		cfg.ConsecutiveFails = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFails
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Retryable()
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("embedding circuit breaker state changed",
					"name", name, "from", from.String(), "to", to.String())
			}
		},
	}

	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Embed implements Embedder. While the breaker is open it fails fast with
// gobreaker.ErrOpenState.
func (b *Breaker) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return out.([]float64), nil
}

// Model implements Embedder.
func (b *Breaker) Model() string { return b.next.Model() }

// State returns the breaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }
