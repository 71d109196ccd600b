package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	cacheerrors "github.com/blueberrycongee/semcache/pkg/errors"
	"github.com/blueberrycongee/semcache/pkg/vecmath"
)

// Computer produces the vector for a key on a cache miss, typically by
// calling an external embedding service.
type Computer interface {
	Compute(ctx context.Context, key string) ([]float64, error)
}

// ComputeFunc adapts an ordinary function to the Computer interface.
type ComputeFunc func(ctx context.Context, key string) ([]float64, error)

// Compute calls f(ctx, key).
func (f ComputeFunc) Compute(ctx context.Context, key string) ([]float64, error) {
	return f(ctx, key)
}

// Outcome tells how a GetOrCompute call was satisfied.
type Outcome int

const (
	// OutcomeHit means an alive entry was found before any flight started.
	OutcomeHit Outcome = iota
	// OutcomeFilled means another caller filled the entry just before this
	// flight re-checked the store.
	OutcomeFilled
	// OutcomeComputed means this call ran the compute function.
	OutcomeComputed
	// OutcomeShared means the flight had more than one caller. Every
	// participant sees it, including the one that ran the computation.
	OutcomeShared
	// OutcomeFailed means the compute function returned an error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeFilled:
		return "filled"
	case OutcomeComputed:
		return "computed"
	case OutcomeShared:
		return "shared"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ComputeResult reports what happened during GetOrCompute.
type ComputeResult struct {
	Outcome  Outcome
	Duration time.Duration // time spent inside the compute function
}

type flightResult struct {
	vector   []float64
	filled   bool
	duration time.Duration
}

// Coordinator implements get-or-compute with at most one computation in
// flight per key. Callers for different keys never wait on each other and
// no lock is held while the compute function runs.
type Coordinator struct {
	store  *Store
	policy Policy
	clock  Clock
	group  singleflight.Group

	// OnCompute, if set, is called once per executed computation.
	OnCompute func(key string, elapsed time.Duration, err error)
}

// NewCoordinator creates a coordinator writing into store.
func NewCoordinator(store *Store, policy Policy, clock Clock) *Coordinator {
	if clock == nil {
		clock = SystemClock
	}
	return &Coordinator{store: store, policy: policy, clock: clock}
}

// GetOrCompute returns the alive vector for key, computing and storing it on
// a miss. A failed computation stores nothing and its error is returned
// unchanged to every caller waiting on the key.
//
// The context of the caller that starts a flight is the one passed to the
// compute function; the coordinator adds no timeout of its own.
func (c *Coordinator) GetOrCompute(ctx context.Context, key string, fn Computer) ([]float64, ComputeResult, error) {
	if vec, ok := c.lookup(key); ok {
		return vec, ComputeResult{Outcome: OutcomeHit}, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// Re-check: a flight for this key may have completed between our
		// lookup and joining the group.
		if vec, ok := c.lookup(key); ok {
			return flightResult{vector: vec, filled: true}, nil
		}

		start := time.Now()
		vec, err := c.invoke(ctx, key, fn)
		elapsed := time.Since(start)
		if c.OnCompute != nil {
			c.OnCompute(key, elapsed, err)
		}
		if err != nil {
			return flightResult{duration: elapsed}, err
		}

		c.store.Insert(key, vec, c.clock())
		return flightResult{vector: vec, duration: elapsed}, nil
	})

	fr, _ := v.(flightResult)
	if err != nil {
		return nil, ComputeResult{Outcome: OutcomeFailed, Duration: fr.duration}, err
	}

	res := ComputeResult{Outcome: OutcomeComputed, Duration: fr.duration}
	switch {
	case shared:
		res.Outcome = OutcomeShared
	case fr.filled:
		res.Outcome = OutcomeFilled
	}
	return vecmath.Clone(fr.vector), res, nil
}

func (c *Coordinator) lookup(key string) ([]float64, bool) {
	e, ok := c.store.Get(key)
	if !ok || !c.policy.IsAlive(&e, c.clock()) {
		return nil, false
	}
	return e.Vector, true
}

func (c *Coordinator) invoke(ctx context.Context, key string, fn Computer) (vec []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = cacheerrors.NewComputeError(key, fmt.Errorf("panic: %v", r))
		}
	}()
	vec, err = fn.Compute(ctx, key)
	if err != nil {
		return nil, err
	}
	return vecmath.Clone(vec), nil
}
