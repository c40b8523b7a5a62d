package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	constants "vpsdash/config"
	"vpsdash/internal/backup"
)

type triggerResponse struct {
	RunID int64 `json:"runId"`
}

type cancelResponse struct {
	RunID  int64  `json:"runId"`
	Status string `json:"status"`
}

// listBackups handles GET /backups?limit=N. The active run, when there is
// one, comes first, followed by finished runs most recent first.
func (h *handler) listBackups(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, constants.DEFAULT_RUNS_LIMIT)
	if !ok {
		errorCode(w, r, http.StatusBadRequest, "invalid_limit")
		return
	}

	if limit == 0 {
		respond(w, r, http.StatusOK, []backup.Run{})
		return
	}

	// limit is caller controlled; size from what the cache holds
	finished := h.cache.Runs(limit)
	runs := make([]backup.Run, 0, len(finished)+1)
	var activeID int64
	if h.backups != nil {
		if active, ok := h.backups.Active(); ok {
			runs = append(runs, active)
			activeID = active.ID
		}
	}
	for _, run := range finished {
		if len(runs) == limit {
			break
		}
		// a run can be both finished in the cache and not yet released
		if run.ID == activeID {
			continue
		}
		runs = append(runs, run)
	}
	respond(w, r, http.StatusOK, runs)
}

// getBackup handles GET /backups/{id}
func (h *handler) getBackup(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		errorCode(w, r, http.StatusBadRequest, "invalid_id")
		return
	}
	if h.backups != nil {
		if active, ok := h.backups.Active(); ok && active.ID == id {
			respond(w, r, http.StatusOK, active)
			return
		}
	}
	run, found := h.cache.Run(id)
	if !found {
		errorCode(w, r, http.StatusNotFound, "not_found")
		return
	}
	respond(w, r, http.StatusOK, run)
}

// triggerBackup handles POST /backups/run
func (h *handler) triggerBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		errorCode(w, r, http.StatusServiceUnavailable, "not_initialized")
		return
	}
	id, err := h.backups.TriggerRun(backup.TriggerManual)
	switch {
	case errors.Is(err, backup.ErrAlreadyRunning):
		errorCode(w, r, http.StatusConflict, "already_running")
	case err != nil:
		h.logger.Warn("manual backup rejected", zap.Error(err))
		errorCode(w, r, http.StatusServiceUnavailable, "unavailable")
	default:
		h.logger.Info("manual backup triggered", zap.Int64("run_id", id))
		respond(w, r, http.StatusAccepted, triggerResponse{RunID: id})
	}
}

// cancelBackup handles POST /backups/{id}/cancel?reason=...
func (h *handler) cancelBackup(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(r)
	if !ok {
		errorCode(w, r, http.StatusBadRequest, "invalid_id")
		return
	}
	if h.backups == nil {
		errorCode(w, r, http.StatusConflict, "not_running")
		return
	}

	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "requested via api"
	}
	if err := h.backups.Cancel(id, reason); err != nil {
		errorCode(w, r, http.StatusConflict, "not_running")
		return
	}
	respond(w, r, http.StatusAccepted, cancelResponse{RunID: id, Status: "cancel_requested"})
}

func runID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
