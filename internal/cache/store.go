package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/blueberrycongee/semcache/pkg/vecmath"
)

// Store is a concurrency-safe map from key to Entry that remembers the
// order in which keys were first inserted.
//
// A map gives O(1) key lookup and a doubly-linked list keeps iteration
// order stable. Overwriting a key keeps its position.
type Store struct {
	mu    sync.RWMutex
	items map[string]*list.Element
	order *list.List // Front = oldest key
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Insert writes or fully replaces the entry for key.
// The vector is copied; later changes by the caller are not observed.
func (s *Store) Insert(key string, vector []float64, at time.Time) {
	e := &Entry{
		Key:        key,
		Vector:     vecmath.Clone(vector),
		InsertedAt: at,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(e)
}

// InsertBatch writes all entries under a single lock hold, so concurrent
// readers observe either none or all of them.
func (s *Store) InsertBatch(entries []Entry) {
	staged := make([]*Entry, len(entries))
	for i := range entries {
		staged[i] = &Entry{
			Key:        entries[i].Key,
			Vector:     vecmath.Clone(entries[i].Vector),
			InsertedAt: entries[i].InsertedAt,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range staged {
		s.putLocked(e)
	}
}

func (s *Store) putLocked(e *Entry) {
	if el, ok := s.items[e.Key]; ok {
		el.Value = e
		return
	}
	s.items[e.Key] = s.order.PushBack(e)
}

// Get returns a copy of the entry for key regardless of liveness.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.RLock()
	el, ok := s.items[key]
	if !ok {
		s.mu.RUnlock()
		return Entry{}, false
	}
	e := el.Value.(*Entry)
	s.mu.RUnlock()

	return Entry{
		Key:        e.Key,
		Vector:     vecmath.Clone(e.Vector),
		InsertedAt: e.InsertedAt,
	}, true
}

// DeleteIf removes key only when fn reports true for the current entry.
// fn runs under the write lock; keep it quick.
func (s *Store) DeleteIf(key string, fn func(*Entry) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok || !fn(el.Value.(*Entry)) {
		return false
	}
	return s.deleteLocked(key)
}

func (s *Store) deleteLocked(key string) bool {
	el, ok := s.items[key]
	if !ok {
		return false
	}
	delete(s.items, key)
	s.order.Remove(el)
	return true
}

// DeleteExpired removes every entry the policy considers dead at now.
//
// This is O(n). With a single cache-wide TTL a min-heap would only help if
// overwrites moved keys to the back, which would break iteration order.
func (s *Store) DeleteExpired(p Policy, now time.Time) int {
	if !p.Expires() {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*Entry)
		if !p.IsAlive(e, now) {
			delete(s.items, e.Key)
			s.order.Remove(el)
			removed++
		}
		el = next
	}
	return removed
}

// RemoveAll drops every entry and returns how many were present.
func (s *Store) RemoveAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	s.items = make(map[string]*list.Element)
	s.order.Init()
	return n
}

// Snapshot returns the current entries in insertion order.
//
// Only the pointer slice is copied. The entries themselves are immutable,
// so callers may scan them without holding the store lock.
func (s *Store) Snapshot() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, len(s.items))
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Entry))
	}
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
// It iterates over a snapshot, so fn may call back into the store.
func (s *Store) Range(fn func(*Entry) bool) {
	for _, e := range s.Snapshot() {
		if !fn(e) {
			return
		}
	}
}

// CountAlive returns the number of entries alive under p at now.
func (s *Store) CountAlive(p Policy, now time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !p.Expires() {
		return len(s.items)
	}

	n := 0
	for el := s.order.Front(); el != nil; el = el.Next() {
		if p.IsAlive(el.Value.(*Entry), now) {
			n++
		}
	}
	return n
}

// Len returns the number of physically stored entries, including expired
// ones that have not been swept yet.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
