package api //nolint:revive // package name is intentional

import (
	"context"
	"errors"
	"net/http"

	"github.com/blueberrycongee/semcache"
	"github.com/blueberrycongee/semcache/internal/keygen"
	cacheerrors "github.com/blueberrycongee/semcache/pkg/errors"
)

type searchRequest struct {
	Vector    []float64 `json:"vector"`
	Threshold *float64  `json:"threshold,omitempty"`
}

type searchResponse struct {
	Found      bool      `json:"found"`
	Key        string    `json:"key,omitempty"`
	Vector     []float64 `json:"vector,omitempty"`
	Similarity float64   `json:"similarity"`
	Threshold  float64   `json:"threshold"`
}

// Search handles POST /v1/search. A miss is a 200 with found=false.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateVector(req.Vector); err != nil {
		h.writeError(w, r, err)
		return
	}

	threshold := h.Threshold()
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	resp := searchResponse{Threshold: threshold}
	if m, ok := h.cache.Search(req.Vector, threshold); ok {
		resp.Found = true
		resp.Key = m.Key
		resp.Vector = m.Vector
		resp.Similarity = m.Similarity
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type embedRequest struct {
	Text      string `json:"text"`
	Namespace string `json:"namespace,omitempty"`
}

type embedResponse struct {
	Key    string    `json:"key"`
	Model  string    `json:"model"`
	Vector []float64 `json:"vector"`
}

// Embed handles POST /v1/embed. The text is embedded at most once per TTL
// window; concurrent requests for the same text share one upstream call.
func (h *Handler) Embed(w http.ResponseWriter, r *http.Request) {
	if h.embedder == nil {
		h.writeErrorMessage(w, http.StatusServiceUnavailable, "embedding backend not configured", errTypeUnavailable)
		return
	}

	var req embedRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Text == "" {
		h.writeError(w, r, cacheerrors.NewInvalidRequestError("text is required"))
		return
	}

	model := h.embedder.Model()
	key := h.keys.Generate(keygen.Params{Model: model, Text: req.Text, Namespace: req.Namespace})

	// The flight is shared with other callers, so it must outlive this
	// request if its client goes away.
	vec, err := h.cache.GetOrCompute(r.Context(), key, semcache.ComputeFunc(
		func(ctx context.Context, _ string) ([]float64, error) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.embedTimeout)
			defer cancel()
			return h.embedder.Embed(ctx, req.Text)
		}))
	if err != nil {
		h.writeEmbedError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, embedResponse{Key: key, Model: model, Vector: vec})
}

func (h *Handler) writeEmbedError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *cacheerrors.CacheError
	switch {
	case errors.As(err, &ce):
		h.writeError(w, r, err)
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		h.log(r).Debug("embed request canceled")
	case errors.Is(err, context.Canceled):
		h.log(r).Warn("shared embedding canceled", "error", err)
		h.writeErrorMessage(w, http.StatusServiceUnavailable, "embedding interrupted", errTypeUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		h.writeErrorMessage(w, http.StatusGatewayTimeout, "embedding timed out", errTypeUpstream)
	default:
		h.log(r).Warn("embedding failed", "error", err)
		h.writeErrorMessage(w, http.StatusBadGateway, "embedding backend failed", errTypeUpstream)
	}
}
