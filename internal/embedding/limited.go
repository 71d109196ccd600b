package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited delays calls so the wrapped embedder sees at most rps
// requests per second on average.
type RateLimited struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket of the given rate and burst.
func NewRateLimited(next Embedder, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Embed waits for a token, then calls the wrapped embedder. It returns
// early with the context error if ctx ends first.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Embed(ctx, text)
}

// Model implements Embedder.
func (r *RateLimited) Model() string { return r.next.Model() }
