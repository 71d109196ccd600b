package api //nolint:revive // package name is intentional

import (
	"net/http"
)

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /v1/entries/{key}", h.PutEntry)
	mux.HandleFunc("GET /v1/entries/{key}", h.GetEntry)
	mux.HandleFunc("DELETE /v1/entries/{key}", h.DeleteEntry)
	mux.HandleFunc("DELETE /v1/entries", h.Clear)

	mux.HandleFunc("POST /v1/search", h.Search)
	mux.HandleFunc("POST /v1/embed", h.Embed)

	mux.HandleFunc("GET /v1/stats", h.Stats)
	mux.HandleFunc("POST /v1/snapshots", h.SaveSnapshot)
	mux.HandleFunc("POST /v1/snapshots/restore", h.RestoreSnapshot)

	mux.HandleFunc("GET /health/live", h.Live)
	mux.HandleFunc("GET /health/ready", h.Ready)
}
