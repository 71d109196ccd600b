package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_BasicOperations(t *testing.T) {
	s := NewStore()
	at := time.Unix(100, 0)

	t.Run("insert and get", func(t *testing.T) {
		s.Insert("a", []float64{1, 2, 3}, at)

		e, ok := s.Get("a")
		require.True(t, ok)
		assert.Equal(t, "a", e.Key)
		assert.Equal(t, []float64{1, 2, 3}, e.Vector)
		assert.True(t, e.InsertedAt.Equal(at))
	})

	t.Run("get missing key", func(t *testing.T) {
		_, ok := s.Get("missing")
		assert.False(t, ok)
	})

	t.Run("overwrite replaces vector and timestamp", func(t *testing.T) {
		later := at.Add(time.Minute)
		s.Insert("a", []float64{9}, later)

		e, ok := s.Get("a")
		require.True(t, ok)
		assert.Equal(t, []float64{9}, e.Vector)
		assert.True(t, e.InsertedAt.Equal(later))
		assert.Equal(t, 1, s.Len())
	})

	t.Run("delete", func(t *testing.T) {
		assert.True(t, deleteKey(s, "a"))
		assert.False(t, deleteKey(s, "a"))
		assert.Equal(t, 0, s.Len())
	})
}

func TestStore_CopiesVectors(t *testing.T) {
	s := NewStore()
	in := []float64{1, 2}
	s.Insert("k", in, time.Now())

	in[0] = 42
	e, _ := s.Get("k")
	assert.Equal(t, 1.0, e.Vector[0], "caller mutation after insert must not leak in")

	e.Vector[1] = 42
	again, _ := s.Get("k")
	assert.Equal(t, 2.0, again.Vector[1], "mutation of a returned vector must not leak in")
}

func TestStore_InsertionOrder(t *testing.T) {
	s := NewStore()
	now := time.Now()
	for _, k := range []string{"c", "a", "b"} {
		s.Insert(k, []float64{1}, now)
	}
	s.Insert("a", []float64{2}, now) // overwrite keeps position

	assert.Equal(t, []string{"c", "a", "b"}, keysOf(s))

	var seen []string
	s.Range(func(e *Entry) bool {
		seen = append(seen, e.Key)
		return e.Key != "a"
	})
	assert.Equal(t, []string{"c", "a"}, seen)
}

func TestStore_InsertBatch(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Insert("keep", []float64{1}, now)
	s.Insert("over", []float64{1}, now)

	s.InsertBatch([]Entry{
		{Key: "over", Vector: []float64{2}, InsertedAt: now},
		{Key: "new", Vector: []float64{3}, InsertedAt: now},
	})

	assert.Equal(t, 3, s.Len())
	e, _ := s.Get("over")
	assert.Equal(t, []float64{2}, e.Vector)
	assert.Equal(t, []string{"keep", "over", "new"}, keysOf(s))
}

func TestStore_DeleteExpiredAndCount(t *testing.T) {
	s := NewStore()
	base := time.Unix(1000, 0)
	s.Insert("old", []float64{1}, base)
	s.Insert("new", []float64{1}, base.Add(5*time.Second))

	p := Policy{TTL: 10 * time.Second}
	now := base.Add(12 * time.Second)

	assert.Equal(t, 1, s.CountAlive(p, now))
	assert.Equal(t, 2, s.Len())

	assert.Equal(t, 1, s.DeleteExpired(p, now))
	assert.Equal(t, []string{"new"}, keysOf(s))

	t.Run("never expiring policy removes nothing", func(t *testing.T) {
		assert.Equal(t, 0, s.DeleteExpired(Policy{}, now.Add(time.Hour)))
		assert.Equal(t, 1, s.CountAlive(Policy{}, now.Add(time.Hour)))
	})
}

func TestStore_DeleteIf(t *testing.T) {
	s := NewStore()
	s.Insert("k", []float64{1}, time.Unix(1, 0))

	assert.False(t, s.DeleteIf("k", func(e *Entry) bool { return e.InsertedAt.Unix() > 1 }))
	assert.False(t, s.DeleteIf("missing", func(*Entry) bool { return true }))
	assert.True(t, s.DeleteIf("k", func(e *Entry) bool { return e.InsertedAt.Unix() == 1 }))
	assert.Equal(t, 0, s.Len())
}

func TestStore_RemoveAll(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.Insert(fmt.Sprintf("k%d", i), []float64{float64(i)}, time.Now())
	}
	assert.Equal(t, 5, s.RemoveAll())
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, keysOf(s))

	s.Insert("again", nil, time.Now())
	assert.Equal(t, []string{"again"}, keysOf(s))
}

func TestStore_Concurrency(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j%10)
				s.Insert(key, []float64{float64(j)}, time.Now())
				_, _ = s.Get(key)
				_ = s.Snapshot()
				if j%7 == 0 {
					deleteKey(s, key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 500)
	assert.Len(t, keysOf(s), s.Len())
}

func keysOf(s *Store) []string {
	var out []string
	s.Range(func(e *Entry) bool {
		out = append(out, e.Key)
		return true
	})
	return out
}

func deleteKey(s *Store, key string) bool {
	return s.DeleteIf(key, func(*Entry) bool { return true })
}
