package cache

import "sync/atomic"

// Stats holds cache statistics for monitoring.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Puts          int64   `json:"puts"`
	Deletes       int64   `json:"deletes"`
	Computations  int64   `json:"computations"`
	ComputeErrors int64   `json:"compute_errors"`
	SharedFlights int64   `json:"shared_flights"`
	Swept         int64   `json:"swept"`
	Entries       int     `json:"entries"`
	HitRate       float64 `json:"hit_rate"`
}

// Counters accumulates Stats with atomic operations. The zero value is ready
// to use.
type Counters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	puts          atomic.Int64
	deletes       atomic.Int64
	computations  atomic.Int64
	computeErrors atomic.Int64
	sharedFlights atomic.Int64
	swept         atomic.Int64
}

// Lookup counts a hit or a miss.
func (c *Counters) Lookup(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

func (c *Counters) Put()    { c.puts.Add(1) }
func (c *Counters) Delete() { c.deletes.Add(1) }
func (c *Counters) Shared() { c.sharedFlights.Add(1) }

// Compute counts one executed computation.
func (c *Counters) Compute(err error) {
	c.computations.Add(1)
	if err != nil {
		c.computeErrors.Add(1)
	}
}

// Sweep counts entries reclaimed by the sweeper.
func (c *Counters) Sweep(removed int) {
	c.swept.Add(int64(removed))
}

// Snapshot returns the current values. entries is reported as is.
func (c *Counters) Snapshot(entries int) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:          hits,
		Misses:        misses,
		Puts:          c.puts.Load(),
		Deletes:       c.deletes.Load(),
		Computations:  c.computations.Load(),
		ComputeErrors: c.computeErrors.Load(),
		SharedFlights: c.sharedFlights.Load(),
		Swept:         c.swept.Load(),
		Entries:       entries,
		HitRate:       hitRate,
	}
}
