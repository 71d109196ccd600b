package semcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blueberrycongee/semcache/pkg/vecmath"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCache_BasicOperations(t *testing.T) {
	c := New()
	defer c.Close()

	t.Run("put and get", func(t *testing.T) {
		c.Put("k1", []float64{1, 2, 3})
		v, ok := c.Get("k1")
		require.True(t, ok)
		assert.Equal(t, []float64{1, 2, 3}, v)
	})

	t.Run("absent key", func(t *testing.T) {
		v, ok := c.Get("nope")
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("overwrite", func(t *testing.T) {
		c.Put("k1", []float64{4})
		v, _ := c.Get("k1")
		assert.Equal(t, []float64{4}, v)
		assert.Equal(t, 1, c.Size())
	})

	t.Run("idempotent put", func(t *testing.T) {
		c.Put("k2", []float64{0.5, 0.5})
		c.Put("k2", []float64{0.5, 0.5})
		v, _ := c.Get("k2")
		assert.Equal(t, []float64{0.5, 0.5}, v)
		assert.Equal(t, 2, c.Size())
	})

	t.Run("delete", func(t *testing.T) {
		assert.True(t, c.Delete("k2"))
		assert.False(t, c.Delete("k2"))
		_, ok := c.Get("k2")
		assert.False(t, ok)
	})

	t.Run("clean", func(t *testing.T) {
		c.Put("a", []float64{1})
		c.Put("b", []float64{1})
		c.Clean()
		assert.Equal(t, 0, c.Size())
		for _, k := range []string{"a", "b", "k1"} {
			_, ok := c.Get(k)
			assert.False(t, ok, k)
		}
	})
}

func TestCache_ReturnedVectorsAreCopies(t *testing.T) {
	c := New()
	defer c.Close()

	in := []float64{1, 2}
	c.Put("k", in)
	in[0] = 100

	out, _ := c.Get("k")
	assert.Equal(t, 1.0, out[0])
	out[1] = 100

	again, _ := c.Get("k")
	assert.Equal(t, 2.0, again[1])
}

func TestCache_TTL(t *testing.T) {
	clock := newTestClock()
	c := New(WithTTLSeconds(2), WithClock(clock.Now), WithSweepInterval(0))
	defer c.Close()

	assert.Equal(t, 2*time.Second, c.TTL())

	c.Put("k", []float64{1})
	clock.Advance(1999 * time.Millisecond)
	_, ok := c.Get("k")
	assert.True(t, ok, "alive just before the ttl elapses")
	assert.Equal(t, 1, c.Size())

	clock.Advance(time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "absent once the ttl has elapsed")
	assert.Equal(t, 0, c.Size())

	_, found := c.GetSimilar([]float64{1}, 0)
	assert.False(t, found, "expired entries never match")

	t.Run("overwrite resets age", func(t *testing.T) {
		c.Put("k", []float64{2})
		clock.Advance(time.Second)
		v, ok := c.Get("k")
		require.True(t, ok)
		assert.Equal(t, []float64{2}, v)
	})
}

func TestCache_Lookup(t *testing.T) {
	clock := newTestClock()
	c := New(WithTTL(time.Minute), WithClock(clock.Now), WithSweepInterval(0))
	defer c.Close()

	c.Put("k", []float64{1, 2})
	inserted := clock.Now()
	clock.Advance(20 * time.Second)

	info, ok := c.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, "k", info.Key)
	assert.Equal(t, []float64{1, 2}, info.Vector)
	assert.Equal(t, inserted, info.InsertedAt)
	assert.True(t, info.Expires)
	assert.Equal(t, 40*time.Second, info.Remaining)

	clock.Advance(40 * time.Second)
	_, ok = c.Lookup("k")
	assert.False(t, ok)

	_, ok = c.Lookup("missing")
	assert.False(t, ok)
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestCache_LookupWithoutTTL(t *testing.T) {
	c := New(WithSweepInterval(0))
	defer c.Close()

	c.Put("k", []float64{1})
	info, ok := c.Lookup("k")
	require.True(t, ok)
	assert.False(t, info.Expires)
	assert.Zero(t, info.Remaining)
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	clock := newTestClock()
	c := New(WithClock(clock.Now))
	defer c.Close()

	c.Put("k", []float64{1})
	clock.Advance(10 * 365 * 24 * time.Hour)
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestCache_NegativeTTLClampsToZero(t *testing.T) {
	c := New(WithTTL(-time.Second))
	defer c.Close()
	assert.Equal(t, time.Duration(0), c.TTL())
}

func TestCache_RealTimeExpiry(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New(WithTTL(50*time.Millisecond), WithSweepInterval(10*time.Millisecond))
	c.Put("k", []float64{1})
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return c.Stats().Swept == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestCache_GetSimilar(t *testing.T) {
	c := New()
	defer c.Close()

	right, err := vecmath.Normalize([]float64{1, 0})
	require.NoError(t, err)
	c.Put("right", right)

	t.Run("near vector matches", func(t *testing.T) {
		q, _ := vecmath.Normalize([]float64{0.99, 0.05})
		v, ok := c.GetSimilar(q, 0.9)
		require.True(t, ok)
		assert.Equal(t, right, v)
	})

	t.Run("orthogonal vector misses", func(t *testing.T) {
		q, _ := vecmath.Normalize([]float64{0, 1})
		_, ok := c.GetSimilar(q, 0.9)
		assert.False(t, ok)
	})

	t.Run("dimension mismatch is a silent miss", func(t *testing.T) {
		_, ok := c.GetSimilar([]float64{1, 0, 0}, -1)
		assert.False(t, ok)
	})

	t.Run("extreme magnitudes still match", func(t *testing.T) {
		c.Put("huge", []float64{1e200, 1e200})
		v, ok := c.GetSimilar([]float64{1e-170, 1e-170}, 0.99)
		require.True(t, ok)
		assert.Equal(t, []float64{1e200, 1e200}, v)
	})

	t.Run("search reports key and similarity", func(t *testing.T) {
		c.Put("up", []float64{0, 1})
		m, ok := c.Search([]float64{0.1, 1}, 0.5)
		require.True(t, ok)
		assert.Equal(t, "up", m.Key)
		assert.InDelta(t, 0.995, m.Similarity, 1e-3)
	})
}

func TestCache_GetOrCompute(t *testing.T) {
	c := New()
	defer c.Close()
	ctx := context.Background()

	const delay = 100 * time.Millisecond
	var calls atomic.Int32
	slow := ComputeFunc(func(_ context.Context, key string) ([]float64, error) {
		calls.Add(1)
		time.Sleep(delay)
		return []float64{float64(len(key)), 1}, nil
	})

	start := time.Now()
	v1, err := c.GetOrCompute(ctx, "hello", slow)
	first := time.Since(start)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first, delay)

	start = time.Now()
	v2, err := c.GetOrCompute(ctx, "hello", slow)
	second := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Less(t, second, delay/2)
	assert.Equal(t, int32(1), calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Computations)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCache_GetOrComputeErrorLeavesNoEntry(t *testing.T) {
	c := New()
	defer c.Close()

	boom := errors.New("rate limited upstream")
	_, err := c.GetOrCompute(context.Background(), "k", ComputeFunc(func(context.Context, string) ([]float64, error) {
		return nil, boom
	}))
	assert.Same(t, boom, err)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, int64(1), c.Stats().ComputeErrors)

	v, err := c.GetOrCompute(context.Background(), "k", ComputeFunc(func(context.Context, string) ([]float64, error) {
		return []float64{7}, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, []float64{7}, v)
}

func TestCache_GetOrComputeConcurrent(t *testing.T) {
	c := New()
	defer c.Close()

	var calls sync.Map
	fn := ComputeFunc(func(_ context.Context, key string) ([]float64, error) {
		n, _ := calls.LoadOrStore(key, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)
		time.Sleep(20 * time.Millisecond)
		return []float64{1, float64(len(key))}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%4)
			v, err := c.GetOrCompute(context.Background(), key, fn)
			assert.NoError(t, err)
			assert.Equal(t, []float64{1, float64(len(key))}, v)
		}(i)
	}
	wg.Wait()

	calls.Range(func(key, n any) bool {
		assert.Equal(t, int32(1), n.(*atomic.Int32).Load(), "key %v computed more than once", key)
		return true
	})
	assert.Equal(t, 4, c.Size())
}

func TestCache_DumpLoadRoundTrip(t *testing.T) {
	for _, format := range []SnapshotFormat{SnapshotArrow, SnapshotJSON} {
		t.Run(string(format), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache.snap")

			src := New(WithTTL(time.Hour), WithSnapshotFormat(format))
			defer src.Close()
			want := map[string][]float64{
				"alpha": {0.1, 0.2, 0.3},
				"beta":  {1e-300, -1e300, math.Pi},
				"gamma": {},
			}
			for k, v := range want {
				src.Put(k, v)
			}
			require.NoError(t, src.Dump(path))

			dst := New(WithTTL(time.Hour))
			defer dst.Close()
			n, err := dst.Load(path)
			require.NoError(t, err)
			assert.Equal(t, len(want), n)
			assert.Equal(t, len(want), dst.Size())

			for k, v := range want {
				got, ok := dst.Get(k)
				require.True(t, ok, k)
				assert.Equal(t, v, got, k)
			}
		})
	}
}

func TestCache_DumpSkipsExpired(t *testing.T) {
	clock := newTestClock()
	c := New(WithTTL(time.Minute), WithClock(clock.Now), WithSweepInterval(0))
	defer c.Close()

	c.Put("old", []float64{1})
	clock.Advance(45 * time.Second)
	c.Put("new", []float64{2})
	clock.Advance(30 * time.Second)

	var buf bytes.Buffer
	n, err := c.DumpTo(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCache_LoadPreservesInsertionTime(t *testing.T) {
	clock := newTestClock()
	src := New(WithTTL(time.Minute), WithClock(clock.Now))
	defer src.Close()
	src.Put("k", []float64{1})

	var buf bytes.Buffer
	_, err := src.DumpTo(context.Background(), &buf)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	dst := New(WithTTL(time.Minute), WithClock(clock.Now))
	defer dst.Close()

	n, err := dst.LoadFrom(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "expired records are still loaded")

	_, ok := dst.Get("k")
	assert.False(t, ok, "but stay invisible under the loading cache's ttl")
	assert.Equal(t, 0, dst.Size())
}

func TestCache_LoadOverwritesAndKeepsOtherKeys(t *testing.T) {
	src := New()
	defer src.Close()
	src.Put("shared", []float64{2})

	var buf bytes.Buffer
	_, err := src.DumpTo(context.Background(), &buf)
	require.NoError(t, err)

	dst := New()
	defer dst.Close()
	dst.Put("shared", []float64{1})
	dst.Put("local", []float64{3})

	_, err = dst.LoadFrom(context.Background(), &buf)
	require.NoError(t, err)

	v, _ := dst.Get("shared")
	assert.Equal(t, []float64{2}, v)
	_, ok := dst.Get("local")
	assert.True(t, ok)
}

func TestCache_LoadFailures(t *testing.T) {
	c := New()
	defer c.Close()
	c.Put("existing", []float64{1})

	t.Run("missing file", func(t *testing.T) {
		n, err := c.Load(filepath.Join(t.TempDir(), "missing.snap"))
		require.Error(t, err)
		assert.Zero(t, n)
		assert.True(t, errors.Is(err, ErrPersistence))
		assert.True(t, errors.Is(err, fs.ErrNotExist))
	})

	t.Run("malformed file leaves store untouched", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.snap")
		require.NoError(t, os.WriteFile(path, []byte(`{"format":"semcache","version":1,"entries":[{"key":"x","vector":[1,`), 0o600))

		_, err := c.Load(path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrPersistence))

		var ce *CacheError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "load", ce.Op)

		assert.Equal(t, 1, c.Size())
		_, ok := c.Get("x")
		assert.False(t, ok)
	})

	t.Run("cancelled context commits nothing", func(t *testing.T) {
		src := New()
		defer src.Close()
		src.Put("x", []float64{1})
		var buf bytes.Buffer
		_, err := src.DumpTo(context.Background(), &buf)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = c.LoadFrom(ctx, &buf)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		_, ok := c.Get("x")
		assert.False(t, ok)
	})
}

func TestCache_DumpFailures(t *testing.T) {
	c := New(WithSnapshotFormat(SnapshotJSON))
	defer c.Close()
	c.Put("nan", []float64{math.NaN()})

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o600))

	err := c.Dump(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "previous", string(data))

	t.Run("unwritable directory", func(t *testing.T) {
		err := c.Dump(filepath.Join(t.TempDir(), "missing-dir", "out"))
		assert.True(t, errors.Is(err, ErrPersistence))
	})
}

func TestCache_Close(t *testing.T) {
	c := New()
	c.Put("k", []float64{1})
	require.NoError(t, c.Close())

	_, ok := c.Get("k")
	assert.True(t, ok, "reads keep working after close")

	_, err := c.GetOrCompute(context.Background(), "k2", ComputeFunc(func(context.Context, string) ([]float64, error) {
		return []float64{1}, nil
	}))
	assert.True(t, errors.Is(err, ErrClosed))

	err = c.Dump(filepath.Join(t.TempDir(), "x"))
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestCache_InstancesAreIndependent(t *testing.T) {
	a := New()
	defer a.Close()
	b := New()
	defer b.Close()

	a.Put("k", []float64{1})
	_, ok := b.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, b.Size())
}

func TestCache_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithMetrics(reg))
	defer c.Close()

	c.Put("k", []float64{1, 0})
	c.Get("k")
	c.Get("missing")
	c.GetSimilar([]float64{1, 0}, 0.5)

	count, err := testutil.GatherAndCount(reg, "semcache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "get/hit, get/miss and similar/hit series")

	families, err := reg.Gather()
	require.NoError(t, err)
	var entries float64
	for _, mf := range families {
		if mf.GetName() == "semcache_entries" {
			entries = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 1.0, entries)
}
