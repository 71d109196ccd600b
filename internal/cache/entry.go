// Package cache implements the semantic cache engine: a concurrent entry
// store with TTL-based liveness, cosine-similarity best-match search,
// single-flight get-or-compute, and snapshot persistence.
//
// The root semcache package is the public facade over this package.
package cache

import (
	"time"
)

// Entry is a cached embedding vector with the time it was written.
//
// Entries held by a Store are immutable: an overwrite swaps in a new Entry,
// so a pointer obtained from Store.Snapshot stays consistent after release
// of the store lock. Callers must not modify Vector through such a pointer.
type Entry struct {
	Key        string
	Vector     []float64
	InsertedAt time.Time
}

// Clock returns the current time. Tests inject fake clocks to drive TTL.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time {
	return time.Now()
}
