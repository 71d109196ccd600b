// Package runner provides benchmark execution and result collection.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/semcache/bench/internal/mock"
)

// Workloads understood by the runner.
const (
	WorkloadPut    = "put"
	WorkloadSearch = "search"
	WorkloadEmbed  = "embed"
)

// Config holds benchmark configuration.
type Config struct {
	Target      string  // Target URL
	Workload    string  // put, search, embed
	Requests    int     // Total number of requests
	Concurrency int     // Number of concurrent workers
	Keyspace    int     // Distinct keys or texts cycled through
	Dimensions  int     // Vector length for put and search
	Noise       float64 // Perturbation added to search vectors
	Threshold   float64 // Search threshold, 0 uses the server default
	Seed        bool    // Put the keyspace before a search run
	Name        string  // Benchmark name
}

// Result holds benchmark results.
type Result struct {
	Name        string        `json:"name"`
	Target      string        `json:"target"`
	Workload    string        `json:"workload"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	Requests    int           `json:"requests"`
	Concurrency int           `json:"concurrency"`

	// Performance metrics
	TotalRequests   int64         `json:"total_requests"`
	SuccessRequests int64         `json:"success_requests"`
	FailedRequests  int64         `json:"failed_requests"`
	Hits            int64         `json:"hits"`
	HitRatio        float64       `json:"hit_ratio"`
	RPS             float64       `json:"rps"`
	LatencyMin      time.Duration `json:"latency_min"`
	LatencyMax      time.Duration `json:"latency_max"`
	LatencyMean     time.Duration `json:"latency_mean"`
	LatencyP50      time.Duration `json:"latency_p50"`
	LatencyP95      time.Duration `json:"latency_p95"`
	LatencyP99      time.Duration `json:"latency_p99"`

	// All latencies for percentile calculation
	Latencies []time.Duration `json:"-"`
}

// Runner executes benchmarks.
type Runner struct {
	client *http.Client
	config Config
}

// NewRunner creates a new benchmark runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Keyspace <= 0 {
		cfg.Keyspace = 1000
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = mock.DefaultDimensions
	}
	if cfg.Workload == "" {
		cfg.Workload = WorkloadSearch
	}
	return &Runner{
		client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.Concurrency * 2,
				MaxIdleConnsPerHost: cfg.Concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config: cfg,
	}
}

type request struct {
	method string
	path   string
	body   []byte
}

// build returns the i-th request of the configured workload.
func (r *Runner) build(i int) (request, error) {
	key := fmt.Sprintf("bench-%d", i%r.config.Keyspace)
	switch r.config.Workload {
	case WorkloadPut:
		body, err := json.Marshal(map[string]any{"vector": mock.Vector(key, r.config.Dimensions)})
		return request{http.MethodPut, "/v1/entries/" + key, body}, err
	case WorkloadSearch:
		vec := mock.Vector(key, r.config.Dimensions)
		if r.config.Noise > 0 {
			for j := range vec {
				vec[j] += (rand.Float64()*2 - 1) * r.config.Noise
			}
		}
		req := map[string]any{"vector": vec}
		if r.config.Threshold != 0 {
			req["threshold"] = r.config.Threshold
		}
		body, err := json.Marshal(req)
		return request{http.MethodPost, "/v1/search", body}, err
	case WorkloadEmbed:
		body, err := json.Marshal(map[string]any{"text": "benchmark text " + key})
		return request{http.MethodPost, "/v1/embed", body}, err
	default:
		return request{}, fmt.Errorf("unknown workload %q", r.config.Workload)
	}
}

// Run executes the benchmark and returns results.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if _, err := r.build(0); err != nil {
		return nil, err
	}
	if r.config.Seed && r.config.Workload == WorkloadSearch {
		if err := r.seed(ctx); err != nil {
			return nil, fmt.Errorf("seed keyspace: %w", err)
		}
	}

	result := &Result{
		Name:        r.config.Name,
		Target:      r.config.Target,
		Workload:    r.config.Workload,
		StartTime:   time.Now(),
		Requests:    r.config.Requests,
		Concurrency: r.config.Concurrency,
		Latencies:   make([]time.Duration, 0, r.config.Requests),
	}

	var (
		successCount atomic.Int64
		failedCount  atomic.Int64
		hitCount     atomic.Int64
		latencies    = make(chan time.Duration, r.config.Requests)
		wg           sync.WaitGroup
	)

	worker := func(requests <-chan int) {
		defer wg.Done()
		for i := range requests {
			req, err := r.build(i)
			if err != nil {
				failedCount.Add(1)
				continue
			}
			start := time.Now()
			hit, err := r.send(ctx, req)
			elapsed := time.Since(start)

			if err != nil {
				failedCount.Add(1)
				continue
			}
			successCount.Add(1)
			if hit {
				hitCount.Add(1)
			}
			latencies <- elapsed
		}
	}

	requests := make(chan int, r.config.Requests)
	for i := 0; i < r.config.Concurrency; i++ {
		wg.Add(1)
		go worker(requests)
	}

sendLoop:
	for i := 0; i < r.config.Requests; i++ {
		select {
		case requests <- i:
		case <-ctx.Done():
			break sendLoop
		}
	}
	close(requests)

	wg.Wait()
	close(latencies)

	for lat := range latencies {
		result.Latencies = append(result.Latencies, lat)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.TotalRequests = successCount.Load() + failedCount.Load()
	result.SuccessRequests = successCount.Load()
	result.FailedRequests = failedCount.Load()
	result.Hits = hitCount.Load()

	r.calculateMetrics(result)

	return result, nil
}

func (r *Runner) seed(ctx context.Context) error {
	for i := 0; i < r.config.Keyspace; i++ {
		key := fmt.Sprintf("bench-%d", i)
		body, err := json.Marshal(map[string]any{"vector": mock.Vector(key, r.config.Dimensions)})
		if err != nil {
			return err
		}
		if _, err := r.send(ctx, request{http.MethodPut, "/v1/entries/" + key, body}); err != nil {
			return err
		}
	}
	return nil
}

// send issues req and reports whether a search found a match.
func (r *Runner) send(ctx context.Context, req request) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, r.config.Target+req.path, bytes.NewReader(req.body))
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if req.path != "/v1/search" {
		return false, nil
	}
	var sr struct {
		Found bool `json:"found"`
	}
	if err := json.Unmarshal(body, &sr); err != nil {
		return false, fmt.Errorf("decode search response: %w", err)
	}
	return sr.Found, nil
}

func (r *Runner) calculateMetrics(result *Result) {
	if result.SuccessRequests > 0 && result.Workload == WorkloadSearch {
		result.HitRatio = float64(result.Hits) / float64(result.SuccessRequests)
	}
	if len(result.Latencies) == 0 {
		return
	}

	sort.Slice(result.Latencies, func(i, j int) bool {
		return result.Latencies[i] < result.Latencies[j]
	})

	result.LatencyMin = result.Latencies[0]
	result.LatencyMax = result.Latencies[len(result.Latencies)-1]

	var total time.Duration
	for _, lat := range result.Latencies {
		total += lat
	}
	result.LatencyMean = total / time.Duration(len(result.Latencies))

	result.LatencyP50 = percentile(result.Latencies, 50)
	result.LatencyP95 = percentile(result.Latencies, 95)
	result.LatencyP99 = percentile(result.Latencies, 99)

	if result.Duration > 0 {
		result.RPS = float64(result.SuccessRequests) / result.Duration.Seconds()
	}
}

func percentile(latencies []time.Duration, p int) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	idx := (len(latencies) * p) / 100
	if idx >= len(latencies) {
		idx = len(latencies) - 1
	}
	return latencies[idx]
}

// PrintResult prints the result in a human-readable format.
func (r *Runner) PrintResult(w io.Writer, result *Result) {
	fmt.Fprintln(w, "\n========================================")
	fmt.Fprintf(w, "Benchmark Results: %s (%s)\n", result.Name, result.Workload)
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Target:       %s\n", result.Target)
	fmt.Fprintf(w, "Duration:     %v\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Concurrency:  %d\n", result.Concurrency)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Requests:")
	fmt.Fprintf(w, "  Total:      %d\n", result.TotalRequests)
	fmt.Fprintf(w, "  Success:    %d\n", result.SuccessRequests)
	fmt.Fprintf(w, "  Failed:     %d\n", result.FailedRequests)
	fmt.Fprintf(w, "  RPS:        %.2f\n", result.RPS)
	if result.Workload == WorkloadSearch {
		fmt.Fprintf(w, "  Hit ratio:  %.3f\n", result.HitRatio)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Latency:")
	fmt.Fprintf(w, "  Min:        %v\n", result.LatencyMin.Round(time.Microsecond))
	fmt.Fprintf(w, "  Max:        %v\n", result.LatencyMax.Round(time.Microsecond))
	fmt.Fprintf(w, "  Mean:       %v\n", result.LatencyMean.Round(time.Microsecond))
	fmt.Fprintf(w, "  P50:        %v\n", result.LatencyP50.Round(time.Microsecond))
	fmt.Fprintf(w, "  P95:        %v\n", result.LatencyP95.Round(time.Microsecond))
	fmt.Fprintf(w, "  P99:        %v\n", result.LatencyP99.Round(time.Microsecond))
	fmt.Fprintln(w, "========================================")
}

// SaveResult saves the result to a JSON file.
func (r *Runner) SaveResult(result *Result, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
