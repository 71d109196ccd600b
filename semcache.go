// Package semcache is an in-process semantic cache for embedding vectors.
//
// A Cache maps string keys to float64 vectors with a single cache-wide TTL.
// Besides exact lookups it answers "closest stored vector" queries by cosine
// similarity, memoizes expensive embedding calls with per-key single flight,
// and snapshots its contents to disk or any io.Writer.
//
// Basic usage:
//
//	c := semcache.New(semcache.WithTTL(time.Hour))
//	defer c.Close()
//
//	vec, err := c.GetOrCompute(ctx, "hello world", semcache.ComputeFunc(
//	    func(ctx context.Context, key string) ([]float64, error) {
//	        return embedder.Embed(ctx, key)
//	    }))
//
//	if v, ok := c.GetSimilar(queryVec, 0.9); ok {
//	    // reuse v
//	}
package semcache

import (
	"github.com/blueberrycongee/semcache/internal/cache"
	"github.com/blueberrycongee/semcache/pkg/errors"
)

// Version is the current version of semcache.
const Version = "0.1.0"

// Re-export engine types so callers need only this package.
type (
	// Computer produces a vector for a key on a cache miss.
	Computer = cache.Computer

	// ComputeFunc adapts a plain function to Computer.
	ComputeFunc = cache.ComputeFunc

	// Match is a similarity search result.
	Match = cache.Match

	// Stats holds cache statistics.
	Stats = cache.Stats

	// SnapshotFormat names a snapshot encoding.
	SnapshotFormat = cache.Format

	// CacheError is the error type returned by the cache.
	CacheError = errors.CacheError
)

// Snapshot formats.
const (
	SnapshotArrow = cache.FormatArrow
	SnapshotJSON  = cache.FormatJSON
)

// Sentinel errors for errors.Is checks.
var (
	ErrPersistence = errors.ErrPersistence
	ErrCompute     = errors.ErrCompute
	ErrClosed      = errors.ErrClosed
)
