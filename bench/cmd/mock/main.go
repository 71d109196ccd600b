// Package main provides the mock embedding server entry point.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blueberrycongee/semcache/bench/internal/mock"
)

func main() {
	port := flag.Int("port", 9090, "Port to listen on")
	latency := flag.Duration("latency", 20*time.Millisecond, "Simulated API latency")
	dims := flag.Int("dims", mock.DefaultDimensions, "Embedding dimensions")
	flag.Parse()

	server := mock.NewServer()
	server.Latency = *latency
	server.Dimensions = *dims

	addr := fmt.Sprintf(":%d", *port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down mock server...")
		_ = httpServer.Close()
	}()

	log.Printf("Mock embedding server starting on %s", addr)
	log.Printf("  Latency:    %v", *latency)
	log.Printf("  Dimensions: %d", *dims)
	log.Printf("  Endpoints:")
	log.Printf("    POST /v1/embeddings")
	log.Printf("    GET  /health")

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}
