package api //nolint:revive // package name is intentional

import (
	"net/http"
	"time"
)

type putEntryRequest struct {
	Vector []float64 `json:"vector"`
}

type entryResponse struct {
	Key        string    `json:"key"`
	Vector     []float64 `json:"vector"`
	InsertedAt time.Time `json:"inserted_at"`
	// Absent when the cache has no TTL.
	TTLRemainingSeconds *float64 `json:"ttl_remaining_seconds,omitempty"`
}

// PutEntry handles PUT /v1/entries/{key}.
func (h *Handler) PutEntry(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req putEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateVector(req.Vector); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.cache.Put(key, req.Vector)
	w.WriteHeader(http.StatusNoContent)
}

// GetEntry handles GET /v1/entries/{key}.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	info, ok := h.cache.Lookup(key)
	if !ok {
		h.writeErrorMessage(w, http.StatusNotFound, "entry not found", errTypeNotFound)
		return
	}
	resp := entryResponse{Key: key, Vector: info.Vector, InsertedAt: info.InsertedAt.UTC()}
	if info.Expires {
		left := info.Remaining.Seconds()
		resp.TTLRemainingSeconds = &left
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// DeleteEntry handles DELETE /v1/entries/{key}.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	deleted := h.cache.Delete(r.PathValue("key"))
	h.writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// Clear handles DELETE /v1/entries.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clean()
	h.log(r).Info("cache cleared")
	w.WriteHeader(http.StatusNoContent)
}
