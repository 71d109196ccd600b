package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blueberrycongee/semcache/internal/pool"
)

// Source is the part of a cache the scheduler needs.
type Source interface {
	DumpTo(ctx context.Context, w io.Writer) (int, error)
	LoadFrom(ctx context.Context, r io.Reader) (int, error)
}

// SchedulerConfig configures periodic snapshots.
type SchedulerConfig struct {
	Name       string        // snapshot name in the store
	Interval   time.Duration // zero disables periodic saves
	Timeout    time.Duration // per save or restore
	SaveOnStop bool
}

// Scheduler dumps a cache to a Store periodically and restores it on demand.
type Scheduler struct {
	src    Source
	store  Store
	cfg    SchedulerConfig
	logger *slog.Logger

	mu       sync.Mutex // serializes saves
	lastSave time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewScheduler creates a scheduler. Call Start to begin periodic saves.
func NewScheduler(src Source, store Store, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Name == "" {
		cfg.Name = "semcache.snapshot"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		src:    src,
		store:  store,
		cfg:    cfg,
		logger: logger.With("snapshot_store", store.Kind(), "snapshot", cfg.Name),
		stopCh: make(chan struct{}),
	}
}

// Start launches the periodic save loop.
func (s *Scheduler) Start() {
	if s.cfg.Interval <= 0 {
		return
	}
	s.wg.Add(1)
	go s.loop()
}

// Stop terminates the loop, optionally saving one last time. Safe to call
// more than once; only the first call saves.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		if s.cfg.SaveOnStop {
			_, err = s.SaveNow(ctx)
		}
	})
	return err
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
			if _, err := s.SaveNow(ctx); err != nil {
				s.logger.Warn("periodic snapshot failed", "error", err)
			}
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

// SaveNow dumps the cache and stores the snapshot, returning the number of
// entries written.
func (s *Scheduler) SaveNow(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	n, err := s.src.DumpTo(ctx, buf)
	if err != nil {
		return 0, fmt.Errorf("dump cache: %w", err)
	}
	size := buf.Len()
	if err := s.store.Save(ctx, s.cfg.Name, buf); err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}

	s.lastSave = time.Now()
	s.logger.Info("snapshot saved", "entries", n, "bytes", size, "elapsed", time.Since(start))
	return n, nil
}

// Restore loads the stored snapshot into the cache. A missing snapshot is
// not an error; it returns 0 entries.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	rc, err := s.store.Open(ctx, s.cfg.Name)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("no snapshot to restore")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open snapshot: %w", err)
	}
	defer rc.Close()

	n, err := s.src.LoadFrom(ctx, rc)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	s.logger.Info("snapshot restored", "entries", n)
	return n, nil
}

// LastSave returns when the last successful save finished.
func (s *Scheduler) LastSave() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSave
}
