// Package metrics provides Prometheus instrumentation for the cache engine
// and its HTTP surface.
//
// Every Metrics value registers on the Registerer it is given, so separate
// cache instances never share collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "semcache"

// LatencyBuckets are histogram buckets (in seconds) for compute and
// snapshot durations.
var LatencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1, 2.5, 5, 10, 30, 60,
}

// Lookup operations.
const (
	OpGet     = "get"
	OpSimilar = "similar"
	OpCompute = "compute"
)

// Metrics holds the collectors for one cache instance.
type Metrics struct {
	reg prometheus.Registerer

	Lookups          *prometheus.CounterVec
	Puts             prometheus.Counter
	Computations     *prometheus.CounterVec
	ComputeDuration  prometheus.Histogram
	SharedFlights    prometheus.Counter
	Swept            prometheus.Counter
	ScanSize         prometheus.Histogram
	SnapshotOps      *prometheus.CounterVec
	SnapshotDuration *prometheus.HistogramVec
	SnapshotEntries  *prometheus.GaugeVec
}

// New creates and registers all collectors on reg.
// It panics if a collector is already registered, like promauto does.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Cache lookups by operation and result",
		}, []string{"op", "result"}),
		Puts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "puts_total",
			Help:      "Vectors written by Put",
		}),
		Computations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computations_total",
			Help:      "Executed compute functions by result",
		}, []string{"result"}),
		ComputeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compute_duration_seconds",
			Help:      "Time spent inside compute functions",
			Buckets:   LatencyBuckets,
		}),
		SharedFlights: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shared_flights_total",
			Help:      "GetOrCompute calls that joined a computation with other callers",
		}),
		Swept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_entries_total",
			Help:      "Expired entries physically removed by the sweeper",
		}),
		ScanSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "similarity_scan_entries",
			Help:      "Entries compared per similarity query",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		SnapshotOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_operations_total",
			Help:      "Dump and load operations by result",
		}, []string{"op", "result"}),
		SnapshotDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Dump and load durations",
			Buckets:   LatencyBuckets,
		}, []string{"op"}),
		SnapshotEntries: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_entries",
			Help:      "Entries in the most recent dump or load",
		}, []string{"op"}),
	}
}

// RegisterSize exposes the live entry count through fn.
func (m *Metrics) RegisterSize(fn func() int) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "entries",
		Help:      "Alive entries in the cache",
	}, func() float64 { return float64(fn()) })
}

// The Record helpers are safe to call on a nil *Metrics.

// RecordLookup counts a lookup.
func (m *Metrics) RecordLookup(op string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.Lookups.WithLabelValues(op, result).Inc()
}

// RecordPut counts a Put.
func (m *Metrics) RecordPut() {
	if m == nil {
		return
	}
	m.Puts.Inc()
}

// RecordCompute records one executed computation.
func (m *Metrics) RecordCompute(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Computations.WithLabelValues(result).Inc()
	m.ComputeDuration.Observe(elapsed.Seconds())
}

// RecordShared counts a caller that joined a shared computation.
func (m *Metrics) RecordShared() {
	if m == nil {
		return
	}
	m.SharedFlights.Inc()
}

// RecordSweep counts entries removed by one sweep.
func (m *Metrics) RecordSweep(removed int) {
	if m == nil || removed <= 0 {
		return
	}
	m.Swept.Add(float64(removed))
}

// RecordScan observes the number of entries compared by a similarity query.
func (m *Metrics) RecordScan(scanned int) {
	if m == nil {
		return
	}
	m.ScanSize.Observe(float64(scanned))
}

// RecordSnapshot records a dump or load.
func (m *Metrics) RecordSnapshot(op string, entries int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SnapshotOps.WithLabelValues(op, result).Inc()
	m.SnapshotDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if err == nil {
		m.SnapshotEntries.WithLabelValues(op).Set(float64(entries))
	}
}
