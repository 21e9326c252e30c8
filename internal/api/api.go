// Package api implements the HTTP surface described in spec §4.7: file
// upload endpoints (sync, async, batch), job status/result/history
// lookups, admin metrics and cleanup, and health checks. Routing follows
// gorilla/mux, in the handler-struct-with-router style used throughout
// the dependency pack's fixture services.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/standardbeagle/docparse/internal/blob"
	"github.com/standardbeagle/docparse/internal/cleanup"
	"github.com/standardbeagle/docparse/internal/config"
	"github.com/standardbeagle/docparse/internal/jobstore"
	"github.com/standardbeagle/docparse/internal/metrics"
	"github.com/standardbeagle/docparse/internal/middleware"
	"github.com/standardbeagle/docparse/internal/pipeline"
	"github.com/standardbeagle/docparse/internal/queue"
	"github.com/standardbeagle/docparse/internal/ratelimit"
	"github.com/standardbeagle/docparse/internal/security"
)

// Handler wires the job store, queue, blob store, pipeline, and
// validator behind the documented HTTP routes.
type Handler struct {
	store    *jobstore.Store
	queue    *queue.Queue
	blobs    *blob.Store
	pipeline *pipeline.Pipeline
	validate *security.FileValidator
	limiter  *ratelimit.Limiter
	sweeper  *cleanup.Sweeper
	cfg      *config.Config

	router *mux.Router

	tombstoneMu sync.Mutex
	tombstones  map[string]time.Time
}

// NewHandler builds a Handler and registers its routes.
func NewHandler(store *jobstore.Store, q *queue.Queue, blobs *blob.Store, pl *pipeline.Pipeline, cfg *config.Config) *Handler {
	h := &Handler{
		store:      store,
		queue:      q,
		blobs:      blobs,
		pipeline:   pl,
		validate:   security.NewFileValidator(cfg.Validator.MaxFileSize, cfg.Validator.MaxSyncFileSize),
		limiter:    ratelimit.New(ratelimit.Config(cfg.RateLimit)),
		sweeper:    cleanup.New(store, blobs, cfg.Cleanup.RetentionDays),
		cfg:        cfg,
		router:     mux.NewRouter(),
		tombstones: make(map[string]time.Time),
	}
	h.setupRoutes()
	return h
}

// Router returns the fully wired router, ready to be mounted or served
// directly.
func (h *Handler) Router() *mux.Router { return h.router }

func (h *Handler) setupRoutes() {
	chain := middleware.Chain(
		middleware.WithRequestID,
		middleware.WithAccessLog,
		middleware.WithSecurityHeaders,
		middleware.WithRateLimit(h.limiter, principalFromRequest),
	)
	h.router.Use(func(next http.Handler) http.Handler { return chain(next) })

	h.router.HandleFunc("/parse/sync", h.parseSync).Methods(http.MethodPost)
	h.router.HandleFunc("/parse/async", h.parseAsync).Methods(http.MethodPost)
	h.router.HandleFunc("/parse/batch", h.parseBatch).Methods(http.MethodPost)
	h.router.HandleFunc("/parse/status/{id}", h.getStatus).Methods(http.MethodGet)
	h.router.HandleFunc("/parse/result/{id}", h.getResult).Methods(http.MethodGet)
	h.router.HandleFunc("/parse/history", h.listHistory).Methods(http.MethodGet)
	h.router.HandleFunc("/parse/{id}", h.deleteJob).Methods(http.MethodDelete)

	h.router.HandleFunc("/admin/metrics", h.adminMetrics).Methods(http.MethodGet)
	h.router.HandleFunc("/admin/stats/real-time", h.adminStatsRealTime).Methods(http.MethodGet)
	h.router.HandleFunc("/admin/cleanup", h.adminCleanup).Methods(http.MethodPost)

	h.router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	h.router.HandleFunc("/health/detailed", h.healthDetailed).Methods(http.MethodGet)
}

// principalFromRequest derives the rate-limit bucket key: the remote
// address, since the service has no authentication layer of its own.
func principalFromRequest(r *http.Request) string {
	return r.RemoteAddr
}

// envelope is the uniform JSON shape returned by every endpoint.
type envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Code:      status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: middleware.RequestID(r.Context()),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, r, status, message, nil)
}
