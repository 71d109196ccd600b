package cache

import (
	"sync"
	"time"
)

// Policy decides entry liveness from a single cache-wide TTL.
// A zero (or negative) TTL means entries never expire.
type Policy struct {
	TTL time.Duration
}

// Expires reports whether the policy can ever consider an entry dead.
func (p Policy) Expires() bool {
	return p.TTL > 0
}

// IsAlive reports whether e is alive at now: always when the TTL is
// disabled, otherwise while now - InsertedAt < TTL.
func (p Policy) IsAlive(e *Entry, now time.Time) bool {
	if !p.Expires() {
		return true
	}
	return now.Sub(e.InsertedAt) < p.TTL
}

// Remaining returns how long e stays alive after now.
// The boolean is false when the policy never expires entries.
func (p Policy) Remaining(e *Entry, now time.Time) (time.Duration, bool) {
	if !p.Expires() {
		return 0, false
	}
	left := p.TTL - now.Sub(e.InsertedAt)
	if left < 0 {
		left = 0
	}
	return left, true
}

// Sweeper periodically removes expired entries from a store.
//
// Reads always check liveness themselves, so the sweeper only reclaims
// memory; it never changes what a caller can observe.
type Sweeper struct {
	store    *Store
	policy   Policy
	clock    Clock
	interval time.Duration
	onSweep  func(removed int)

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewSweeper creates a sweeper. onSweep, if non-nil, is called after every
// pass with the number of removed entries.
func NewSweeper(store *Store, policy Policy, clock Clock, interval time.Duration, onSweep func(int)) *Sweeper {
	if clock == nil {
		clock = SystemClock
	}
	return &Sweeper{
		store:    store,
		policy:   policy,
		clock:    clock,
		interval: interval,
		onSweep:  onSweep,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background loop. It does nothing when the interval is
// not positive or the policy never expires entries.
func (s *Sweeper) Start() {
	if s.interval <= 0 || !s.policy.Expires() {
		return
	}
	s.wg.Add(1)
	go s.loop()
}

// Stop terminates the loop and waits for it to exit. Safe to call twice.
func (s *Sweeper) Stop() {
	s.once.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

// SweepNow runs one pass synchronously and returns the number removed.
func (s *Sweeper) SweepNow() int {
	removed := s.store.DeleteExpired(s.policy, s.clock())
	if s.onSweep != nil {
		s.onSweep(removed)
	}
	return removed
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepNow()
		case <-s.stopCh:
			return
		}
	}
}
