// Package mock provides a mock embedding server for benchmarking.
// It serves OpenAI-compatible /v1/embeddings responses with deterministic
// vectors, so identical texts always embed to the same point.
package mock

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// DefaultDimensions is the vector size returned when Dimensions is unset.
const DefaultDimensions = 64

// Server is a mock embedding API server.
type Server struct {
	// Latency simulates API processing time.
	Latency time.Duration

	// Dimensions is the length of each returned vector.
	Dimensions int

	// RequestCount tracks total embedding requests handled.
	RequestCount atomic.Int64
}

// NewServer creates a new mock server with default settings.
func NewServer() *Server {
	return &Server{
		Latency:    20 * time.Millisecond,
		Dimensions: DefaultDimensions,
	}
}

// EmbeddingRequest is the accepted request body.
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingResponse mirrors the OpenAI embeddings response.
type EmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []EmbeddingData `json:"data"`
	Model  string          `json:"model"`
}

// EmbeddingData is one vector in EmbeddingResponse.
type EmbeddingData struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

// Handler returns an http.Handler for the mock server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/embeddings", s.handleEmbeddings)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	s.RequestCount.Add(1)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request", http.StatusBadRequest)
		return
	}

	var req EmbeddingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if s.Latency > 0 {
		time.Sleep(s.Latency)
	}

	dims := s.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}
	resp := EmbeddingResponse{Object: "list", Model: req.Model}
	for i, text := range req.Input {
		resp.Data = append(resp.Data, EmbeddingData{
			Object:    "embedding",
			Embedding: Vector(text, dims),
			Index:     i,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":        "ok",
		"request_count": s.RequestCount.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Vector derives a unit vector of length dims from text. The same text
// always yields the same vector.
func Vector(text string, dims int) []float64 {
	out := make([]float64, dims)
	seed := sha256.Sum256([]byte(text))
	block := seed
	var norm float64
	for i := range out {
		off := (i * 4) % len(block)
		if i > 0 && off == 0 {
			block = sha256.Sum256(block[:])
		}
		u := binary.BigEndian.Uint32(block[off : off+4])
		out[i] = float64(u)/math.MaxUint32*2 - 1
		norm += out[i] * out[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		out[0] = 1
		return out
	}
	for i := range out {
		out[i] /= norm
	}
	return out
}

// Stats returns server statistics.
func (s *Server) Stats() map[string]any {
	return map[string]any{
		"request_count": s.RequestCount.Load(),
		"latency_ms":    s.Latency.Milliseconds(),
	}
}
