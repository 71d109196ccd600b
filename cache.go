package semcache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/blueberrycongee/semcache/internal/cache"
	"github.com/blueberrycongee/semcache/internal/metrics"
	"github.com/blueberrycongee/semcache/internal/observability"
	"github.com/blueberrycongee/semcache/pkg/errors"
)

// Cache is a concurrent semantic cache. All methods are safe for concurrent
// use. Instances share no state with each other.
type Cache struct {
	cfg     *Config
	policy  cache.Policy
	store   *cache.Store
	index   *cache.Index
	coord   *cache.Coordinator
	sweeper *cache.Sweeper

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	stats   cache.Counters

	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a cache. Call Close to stop the background sweep.
func New(opts ...Option) *Cache {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Cache{
		cfg:     cfg,
		policy:  cache.Policy{TTL: cfg.TTL},
		store:   cache.NewStore(),
		logger:  cfg.Logger,
		metrics: cfg.metrics(),
		tracer:  cfg.Tracer,
	}
	if c.tracer == nil {
		c.tracer = noop.NewTracerProvider().Tracer(observability.TracerName)
	}

	c.index = cache.NewIndex(c.store, c.policy)
	c.coord = cache.NewCoordinator(c.store, c.policy, cfg.Clock)
	c.coord.OnCompute = c.onCompute
	c.sweeper = cache.NewSweeper(c.store, c.policy, cfg.Clock, cfg.SweepInterval, c.onSweep)

	c.metrics.RegisterSize(c.Size)
	c.sweeper.Start()
	return c
}

func (c *Cache) now() time.Time {
	return c.cfg.Clock()
}

// TTL returns the cache-wide time to live. Zero means no expiry.
func (c *Cache) TTL() time.Duration {
	return c.policy.TTL
}

// Put stores vector under key, replacing any previous entry and resetting
// its age. The vector is copied.
func (c *Cache) Put(key string, vector []float64) {
	c.store.Insert(key, vector, c.now())
	c.stats.Put()
	c.metrics.RecordPut()
}

// Get returns a copy of the vector stored under key if it is alive.
func (c *Cache) Get(key string) ([]float64, bool) {
	info, ok := c.Lookup(key)
	return info.Vector, ok
}

// EntryInfo describes an alive entry.
type EntryInfo struct {
	Key        string
	Vector     []float64
	InsertedAt time.Time
	// Remaining is how long the entry stays alive. It is only meaningful
	// when Expires is true; a cache without TTL keeps entries forever.
	Remaining time.Duration
	Expires   bool
}

// Lookup is Get that also reports when the entry was stored and how long
// it has left.
func (c *Cache) Lookup(key string) (EntryInfo, bool) {
	now := c.now()
	e, ok := c.store.Get(key)
	hit := ok && c.policy.IsAlive(&e, now)

	c.stats.Lookup(hit)
	c.metrics.RecordLookup(metrics.OpGet, hit)
	if !hit {
		return EntryInfo{}, false
	}
	left, expires := c.policy.Remaining(&e, now)
	return EntryInfo{
		Key:        e.Key,
		Vector:     e.Vector,
		InsertedAt: e.InsertedAt,
		Remaining:  left,
		Expires:    expires,
	}, true
}

// GetSimilar returns the alive vector most similar to query whose cosine
// similarity is at least threshold. Entries whose length differs from the
// query, or whose norm is zero, never match.
func (c *Cache) GetSimilar(query []float64, threshold float64) ([]float64, bool) {
	m, ok := c.Search(query, threshold)
	if !ok {
		return nil, false
	}
	return m.Vector, true
}

// Search is GetSimilar returning the matching key and its similarity too.
func (c *Cache) Search(query []float64, threshold float64) (Match, bool) {
	m, ok, scan := c.index.FindBestMatch(c.now(), query, threshold)

	c.stats.Lookup(ok)
	c.metrics.RecordLookup(metrics.OpSimilar, ok)
	c.metrics.RecordScan(scan.Scanned)
	if scan.Skipped > 0 {
		c.logger.Debug("similarity scan skipped incomparable entries",
			"skipped", scan.Skipped, "query_dim", len(query))
	}
	return m, ok
}

// GetOrCompute returns the alive vector for key or computes, stores and
// returns it. Concurrent callers for the same key share one computation;
// callers for different keys never wait on each other.
//
// An error returned by fn is passed through unchanged and nothing is stored.
// ctx is handed to fn when this call starts the computation.
func (c *Cache) GetOrCompute(ctx context.Context, key string, fn Computer) ([]float64, error) {
	if c.closed.Load() {
		return nil, errors.NewClosedError("get_or_compute")
	}

	ctx, span := observability.StartCacheSpan(ctx, c.tracer, "get_or_compute",
		attribute.Int("semcache.key_len", len(key)))
	defer span.End()

	vec, res, err := c.coord.GetOrCompute(ctx, key, fn)
	span.SetAttributes(attribute.String("semcache.outcome", res.Outcome.String()))

	hit := res.Outcome == cache.OutcomeHit || res.Outcome == cache.OutcomeFilled
	c.stats.Lookup(hit)
	c.metrics.RecordLookup(metrics.OpCompute, hit)
	if res.Outcome == cache.OutcomeShared {
		c.stats.Shared()
		c.metrics.RecordShared()
	}

	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return vec, nil
}

func (c *Cache) onCompute(key string, elapsed time.Duration, err error) {
	c.stats.Compute(err)
	c.metrics.RecordCompute(elapsed, err)
	if err != nil {
		c.logger.Warn("compute failed", "key_len", len(key), "elapsed", elapsed, "error", err)
		return
	}
	c.logger.Debug("computed vector", "key_len", len(key), "elapsed", elapsed)
}

func (c *Cache) onSweep(removed int) {
	c.stats.Sweep(removed)
	c.metrics.RecordSweep(removed)
	if removed > 0 {
		c.logger.Debug("swept expired entries", "removed", removed)
	}
}

// Delete removes key and reports whether an alive entry was removed.
func (c *Cache) Delete(key string) bool {
	now := c.now()
	alive := false
	removed := c.store.DeleteIf(key, func(e *cache.Entry) bool {
		alive = c.policy.IsAlive(e, now)
		return true
	})
	if removed {
		c.stats.Delete()
	}
	return removed && alive
}

// Size returns the number of alive entries.
func (c *Cache) Size() int {
	return c.store.CountAlive(c.policy, c.now())
}

// Clean removes every entry, alive or not.
func (c *Cache) Clean() {
	n := c.store.RemoveAll()
	c.logger.Debug("cache cleaned", "removed", n)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return c.stats.Snapshot(c.Size())
}

// Dump writes every alive entry to path. The file is replaced atomically:
// a failed dump leaves any previous file at path intact.
func (c *Cache) Dump(path string) error {
	ctx, span := observability.StartCacheSpan(context.Background(), c.tracer, "dump",
		attribute.String("semcache.path", path))
	defer span.End()

	start := time.Now()
	var n int
	err := cache.WriteFileAtomic(path, func(w io.Writer) error {
		var err error
		n, err = c.dumpTo(ctx, w)
		return err
	})
	if err != nil {
		err = errors.NewPersistenceError("dump", path, err)
	}
	c.finishSnapshot(span, "dump", path, n, start, err)
	return err
}

// DumpTo writes every alive entry to w and returns how many were written.
func (c *Cache) DumpTo(ctx context.Context, w io.Writer) (int, error) {
	ctx, span := observability.StartCacheSpan(ctx, c.tracer, "dump_to")
	defer span.End()

	start := time.Now()
	n, err := c.dumpTo(ctx, w)
	if err != nil {
		err = errors.NewPersistenceError("dump", "", err)
	}
	c.finishSnapshot(span, "dump", "", n, start, err)
	return n, err
}

func (c *Cache) dumpTo(ctx context.Context, w io.Writer) (int, error) {
	if c.closed.Load() {
		return 0, errors.NewClosedError("dump")
	}
	codec, err := cache.CodecFor(c.cfg.SnapshotFormat)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	snap := cache.NewSnapshot(c.store, c.policy, c.now())
	if err := codec.Encode(w, snap); err != nil {
		return 0, err
	}
	return len(snap.Entries), nil
}

// Load reads a snapshot from path and inserts every record, overwriting
// existing keys. Records are inserted even if already expired under this
// cache's TTL; they simply stay invisible to reads.
//
// Either every record is inserted or, on any error, none is.
func (c *Cache) Load(path string) (int, error) {
	ctx, span := observability.StartCacheSpan(context.Background(), c.tracer, "load",
		attribute.String("semcache.path", path))
	defer span.End()

	start := time.Now()
	n, err := c.loadFile(ctx, path)
	if err != nil {
		err = errors.NewPersistenceError("load", path, err)
	}
	c.finishSnapshot(span, "load", path, n, start, err)
	return n, err
}

func (c *Cache) loadFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return c.loadFrom(ctx, f)
}

// LoadFrom reads a snapshot from r with the same semantics as Load.
func (c *Cache) LoadFrom(ctx context.Context, r io.Reader) (int, error) {
	ctx, span := observability.StartCacheSpan(ctx, c.tracer, "load_from")
	defer span.End()

	start := time.Now()
	n, err := c.loadFrom(ctx, r)
	if err != nil {
		err = errors.NewPersistenceError("load", "", err)
	}
	c.finishSnapshot(span, "load", "", n, start, err)
	return n, err
}

func (c *Cache) loadFrom(ctx context.Context, r io.Reader) (int, error) {
	if c.closed.Load() {
		return 0, errors.NewClosedError("load")
	}
	snap, err := cache.ReadSnapshot(r)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("load aborted before commit: %w", err)
	}

	c.store.InsertBatch(snap.Entries)
	if snap.TTL != c.policy.TTL {
		c.logger.Info("snapshot ttl differs from cache ttl",
			"snapshot_ttl", snap.TTL, "cache_ttl", c.policy.TTL)
	}
	return len(snap.Entries), nil
}

func (c *Cache) finishSnapshot(span trace.Span, op, path string, n int, start time.Time, err error) {
	elapsed := time.Since(start)
	c.metrics.RecordSnapshot(op, n, elapsed, err)
	span.SetAttributes(attribute.Int("semcache.entries", n))

	if err != nil {
		observability.RecordError(span, err)
		c.logger.Warn("snapshot "+op+" failed", "path", path, "error", err)
		return
	}
	c.logger.Info("snapshot "+op, "path", path, "entries", n, "elapsed", elapsed)
}

// Close stops the background sweep. In-memory operations keep working;
// GetOrCompute and the snapshot operations return ErrClosed afterwards.
// Close is idempotent.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.sweeper.Stop()
	})
	return nil
}
