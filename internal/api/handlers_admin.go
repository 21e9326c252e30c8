package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/standardbeagle/docparse/internal/metrics"
	"github.com/standardbeagle/docparse/internal/types"
)

// statsWindow bounds the real-time stats query to the trailing day.
const statsWindow = 24 * time.Hour

// adminMetrics exposes the Prometheus text exposition format against the
// service's dedicated registry, handing off to promhttp the way the
// corpus wires a /metrics endpoint.
func (h *Handler) adminMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.Get().Registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// adminStatsRealTime reports a quick operational snapshot: what's in
// flight right now, plus a trailing-day completion summary.
func (h *Handler) adminStatsRealTime(w http.ResponseWriter, r *http.Request) {
	stats := h.store.Stats(statsWindow)
	h.writeJSON(w, r, http.StatusOK, "ok", map[string]any{
		"processing":      stats.ByState[types.StateRunning] + stats.ByState[types.StateLeased],
		"queued":          h.queue.Len(),
		"completed_today": stats.ByState[types.StateCompleted],
		"success_rate":    stats.SuccessRate,
	})
}

// adminCleanup triggers an immediate retention sweep over terminal jobs
// older than the given number of days.
func (h *Handler) adminCleanup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateCleanupRequest(map[string]any{"days": body.Days}); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res := h.sweeper.Run(body.Days)
	h.writeJSON(w, r, http.StatusOK, "ok", map[string]any{"deleted": res.JobsDeleted})
}

// health is a liveness probe: the process is up and answering requests.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, "ok", map[string]any{"status": "up"})
}

// healthDetailed additionally reports queue depth and in-flight lease
// count, the two things most likely to indicate a stuck worker pool.
func (h *Handler) healthDetailed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, "ok", map[string]any{
		"status":      "up",
		"queue_depth": h.queue.Len(),
		"in_flight":   h.queue.InFlight(),
	})
}
