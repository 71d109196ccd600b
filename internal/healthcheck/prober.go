// Package healthcheck runs periodic dependency probes that feed the
// readiness endpoint.
package healthcheck

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultProbeInterval    = 30 * time.Second
	defaultProbeTimeout     = 5 * time.Second
	defaultFailureThreshold = 3
)

// Config controls the prober behavior.
type Config struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
	// FailureThreshold consecutive failures mark a check unhealthy.
	FailureThreshold int
}

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// Result is the last known state of a check.
type Result struct {
	Name                string    `json:"name"`
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastChecked         time.Time `json:"last_checked"`
}

// Prober periodically runs registered checks.
type Prober struct {
	cfg     Config
	logger  *slog.Logger
	started atomic.Bool

	mu      sync.RWMutex
	checks  map[string]CheckFunc
	results map[string]*Result
}

// NewProber creates a new health checker.
func NewProber(cfg Config, logger *slog.Logger) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Prober{
		cfg:     cfg,
		logger:  logger,
		checks:  make(map[string]CheckFunc),
		results: make(map[string]*Result),
	}
}

// Register adds a named check. Checks start out healthy.
func (p *Prober) Register(name string, check CheckFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks[name] = check
	p.results[name] = &Result{Name: name, Healthy: true}
}

// Start begins the probe loop until the context is canceled.
func (p *Prober) Start(ctx context.Context) {
	if p == nil || !p.cfg.Enabled {
		return
	}
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	go p.run(ctx)
}

func (p *Prober) run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.RunOnce(ctx)
		case <-ctx.Done():
			p.logger.Info("healthcheck prober stopped")
			return
		}
	}
}

// RunOnce runs every check once, sequentially.
func (p *Prober) RunOnce(ctx context.Context) {
	p.mu.RLock()
	names := make([]string, 0, len(p.checks))
	for name := range p.checks {
		names = append(names, name)
	}
	p.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		p.mu.RLock()
		check := p.checks[name]
		p.mu.RUnlock()

		probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		err := check(probeCtx)
		cancel()
		p.record(name, err)
	}
}

func (p *Prober) record(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.results[name]
	wasHealthy := r.Healthy
	r.LastChecked = time.Now()
	if err == nil {
		r.ConsecutiveFailures = 0
		r.LastError = ""
		r.Healthy = true
		if !wasHealthy {
			p.logger.Info("healthcheck recovered", "check", name)
		}
		return
	}

	r.ConsecutiveFailures++
	r.LastError = err.Error()
	if r.ConsecutiveFailures >= p.cfg.FailureThreshold {
		r.Healthy = false
	}
	p.logger.Warn("healthcheck probe failed",
		"check", name,
		"consecutive_failures", r.ConsecutiveFailures,
		"healthy", r.Healthy,
		"error", err,
	)
}

// Healthy reports whether every check is healthy. A nil Prober is healthy.
func (p *Prober) Healthy() bool {
	if p == nil {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range p.results {
		if !r.Healthy {
			return false
		}
	}
	return true
}

// Results returns a copy of all check states sorted by name.
func (p *Prober) Results() []Result {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Result, 0, len(p.results))
	for _, r := range p.results {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
