package cache

import (
	"time"

	"github.com/blueberrycongee/semcache/pkg/vecmath"
)

// Match is the result of a similarity search.
type Match struct {
	Key        string
	Vector     []float64
	Similarity float64
}

// SearchStats describes one similarity scan.
type SearchStats struct {
	Scanned int // alive entries compared against the query
	Skipped int // entries with mismatched dimensions or zero norm
	Expired int // entries ignored because they are dead
}

// Index answers nearest-match queries by scanning the store linearly.
// No index structure is maintained; every query costs O(n·d).
type Index struct {
	store  *Store
	policy Policy
}

// NewIndex creates an index over store using policy for liveness.
func NewIndex(store *Store, policy Policy) *Index {
	return &Index{store: store, policy: policy}
}

// FindBestMatch returns the alive entry most similar to query whose cosine
// similarity is at least threshold.
//
// Entries that cannot be compared with the query (different length or zero
// norm) are treated as non-matches. Exact ties keep the entry that comes
// first in insertion order.
func (ix *Index) FindBestMatch(now time.Time, query []float64, threshold float64) (Match, bool, SearchStats) {
	var (
		stats SearchStats
		best  *Entry
		score float64
	)

	for _, e := range ix.store.Snapshot() {
		if !ix.policy.IsAlive(e, now) {
			stats.Expired++
			continue
		}
		sim, err := vecmath.CosineSimilarity(query, e.Vector)
		if err != nil {
			stats.Skipped++
			continue
		}
		stats.Scanned++

		if sim >= threshold && (best == nil || sim > score) {
			best = e
			score = sim
		}
	}

	if best == nil {
		return Match{}, false, stats
	}
	return Match{
		Key:        best.Key,
		Vector:     vecmath.Clone(best.Vector),
		Similarity: score,
	}, true, stats
}
