// Package main provides the benchmark runner entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/blueberrycongee/semcache/bench/internal/runner"
)

func main() {
	os.Exit(run())
}

func run() int {
	target := flag.String("target", "http://localhost:8080", "Target semcache server URL")
	workload := flag.String("workload", runner.WorkloadSearch, "Workload: put, search or embed")
	requests := flag.Int("requests", 1000, "Total number of requests")
	concurrency := flag.Int("concurrency", 50, "Number of concurrent workers")
	keyspace := flag.Int("keyspace", 1000, "Distinct keys cycled through")
	dims := flag.Int("dims", 64, "Vector dimensions")
	noise := flag.Float64("noise", 0.01, "Noise added to search vectors")
	threshold := flag.Float64("threshold", 0, "Search threshold, 0 uses the server default")
	seed := flag.Bool("seed", true, "Put the keyspace before a search run")
	name := flag.String("name", "benchmark", "Benchmark name")
	output := flag.String("output", "bench/results", "Output directory for results")
	flag.Parse()

	cfg := runner.Config{
		Target:      *target,
		Workload:    *workload,
		Requests:    *requests,
		Concurrency: *concurrency,
		Keyspace:    *keyspace,
		Dimensions:  *dims,
		Noise:       *noise,
		Threshold:   *threshold,
		Seed:        *seed,
		Name:        *name,
	}

	log.Printf("Starting benchmark: %s", *name)
	log.Printf("  Target:      %s", *target)
	log.Printf("  Workload:    %s", *workload)
	log.Printf("  Requests:    %d", *requests)
	log.Printf("  Concurrency: %d", *concurrency)

	r := runner.NewRunner(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, runErr := r.Run(ctx)
	if runErr != nil {
		log.Printf("Benchmark failed: %v", runErr)
		return 1
	}

	r.PrintResult(os.Stdout, result)

	if mkdirErr := os.MkdirAll(*output, 0o755); mkdirErr != nil {
		log.Printf("Warning: failed to create output directory: %v", mkdirErr)
	}

	filename := fmt.Sprintf("%s_%s.json", *name, time.Now().Format("20060102_150405"))
	resultPath := filepath.Join(*output, filename)
	if err := r.SaveResult(result, resultPath); err != nil {
		log.Printf("Warning: failed to save results: %v", err)
	} else {
		log.Printf("Results saved to: %s", resultPath)
	}

	return 0
}
