package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/standardbeagle/docparse/internal/blob"
	"github.com/standardbeagle/docparse/internal/jobstore"
	"github.com/standardbeagle/docparse/internal/metrics"
	"github.com/standardbeagle/docparse/internal/types"
)

func blobHandleFrom(job *types.Job) blob.Handle {
	return blob.Handle{Path: job.BlobHandle, Hash: job.ContentHash, Size: job.SizeBytes}
}

func pathJobID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathJobID(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := h.store.Get(id)
	if err != nil {
		h.writeError(w, r, http.StatusNotFound, "job not found")
		return
	}
	h.writeJSON(w, r, http.StatusOK, "ok", map[string]any{
		"state":    job.State,
		"progress": job.Progress,
		"stage":    job.Stage,
	})
}

func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathJobID(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := h.store.Get(id)
	if err != nil {
		if h.isTombstoned(id) {
			h.writeError(w, r, http.StatusGone, "job was deleted")
			return
		}
		h.writeError(w, r, http.StatusNotFound, "job not found")
		return
	}
	if job.State != types.StateCompleted {
		h.writeJSON(w, r, http.StatusAccepted, "not yet completed", map[string]any{"state": job.State})
		return
	}
	h.writeJSON(w, r, http.StatusOK, "ok", job.Result)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := jobstore.Filter{
		State:       types.State(q.Get("state")),
		ParsingType: types.ParsingType(q.Get("parsing_type")),
	}
	if bid := q.Get("batch_id"); bid != "" {
		if id, err := uuid.Parse(bid); err == nil {
			filter.BatchID = &id
		}
	}
	page := atoiOr(q.Get("page"), 1)
	size := atoiOr(q.Get("size"), 20)

	jobs, total, err := h.store.List(filter, page, size)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	h.writeJSON(w, r, http.StatusOK, "ok", map[string]any{"jobs": jobs, "total": total})
}

// deleteJob honors the state-dependent cancellation lifecycle: a job
// still pending or queued is cancelled and deleted outright, a job
// already leased or running is only flagged for cooperative
// cancellation (the pipeline ack-writes cancelled at its next stage
// boundary), and a job already in a terminal state is deleted unchanged.
func (h *Handler) deleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathJobID(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := h.store.Get(id)
	if err != nil {
		h.writeError(w, r, http.StatusNotFound, "job not found")
		return
	}

	switch job.State {
	case types.StatePending, types.StateQueued:
		if err := h.store.Transition(id, []types.State{types.StatePending, types.StateQueued}, types.StateCancelled, nil, nil); err != nil {
			h.writeError(w, r, http.StatusInternalServerError, "failed to cancel job")
			return
		}
		metrics.Get().JobsCancelled.Inc()
	case types.StateLeased, types.StateRunning:
		if err := h.store.Transition(id, []types.State{types.StateLeased, types.StateRunning}, "", nil, func(j *types.Job) {
			j.CancelRequested = true
		}); err != nil {
			h.writeError(w, r, http.StatusInternalServerError, "failed to request cancellation")
			return
		}
		h.writeJSON(w, r, http.StatusAccepted, "cancellation requested", map[string]any{"state": job.State})
		return
	}

	if err := h.store.Delete(id); err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "failed to delete job")
		return
	}
	if job.BlobHandle != "" {
		_ = h.blobs.Delete(blobHandleFrom(job))
	}
	h.markTombstoned(id)
	w.WriteHeader(http.StatusNoContent)
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// isTombstoned/markTombstoned track deletions this process has handled, so
// /parse/result can distinguish "never existed" (404) from "deleted"
// (410). The job store itself performs a hard delete and carries no
// memory of what used to be there.
func (h *Handler) markTombstoned(id uuid.UUID) {
	h.tombstoneMu.Lock()
	defer h.tombstoneMu.Unlock()
	h.tombstones[id.String()] = time.Now()
}

func (h *Handler) isTombstoned(id uuid.UUID) bool {
	h.tombstoneMu.Lock()
	defer h.tombstoneMu.Unlock()
	_, ok := h.tombstones[id.String()]
	return ok
}
