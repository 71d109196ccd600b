package api //nolint:revive // package name is intentional

import (
	"net/http"

	"github.com/blueberrycongee/semcache"
	"github.com/blueberrycongee/semcache/internal/healthcheck"
	cacheerrors "github.com/blueberrycongee/semcache/pkg/errors"
)

type statsResponse struct {
	semcache.Stats
	TTLSeconds float64 `json:"ttl_seconds"`
	Threshold  float64 `json:"threshold"`
	Version    string  `json:"version"`
}

// Stats handles GET /v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, statsResponse{
		Stats:      h.cache.Stats(),
		TTLSeconds: h.cache.TTL().Seconds(),
		Threshold:  h.Threshold(),
		Version:    semcache.Version,
	})
}

// SaveSnapshot handles POST /v1/snapshots.
func (h *Handler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeErrorMessage(w, http.StatusServiceUnavailable, "snapshots not configured", errTypeUnavailable)
		return
	}
	n, err := h.snapshots.SaveNow(r.Context())
	if err != nil {
		h.writeError(w, r, cacheerrors.NewPersistenceError("save", "", err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"entries": n})
}

// RestoreSnapshot handles POST /v1/snapshots/restore.
func (h *Handler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeErrorMessage(w, http.StatusServiceUnavailable, "snapshots not configured", errTypeUnavailable)
		return
	}
	n, err := h.snapshots.Restore(r.Context())
	if err != nil {
		h.writeError(w, r, cacheerrors.NewPersistenceError("restore", "", err))
		return
	}
	h.log(r).Info("snapshot restored via api", "entries", n)
	h.writeJSON(w, http.StatusOK, map[string]int{"entries": n})
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Status string               `json:"status"`
	Checks []healthcheck.Result `json:"checks,omitempty"`
}

// Ready handles GET /health/ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		h.writeJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "starting"})
		return
	}
	if h.health == nil {
		h.writeJSON(w, http.StatusOK, readyResponse{Status: "ok"})
		return
	}

	resp := readyResponse{Status: "ok", Checks: h.health.Results()}
	if !h.health.Healthy() {
		resp.Status = "degraded"
		h.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}
