package api

import (
	"net/http"
	"strconv"
	"time"

	constants "vpsdash/config"
)

// getHealth handles GET /health. It always answers with the best-known
// snapshot, even when every probe is failing.
func (h *handler) getHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.cache.Current()
	age := snap.Age(time.Now())
	w.Header().Set("X-Snapshot-Age", strconv.FormatInt(int64(age/time.Second), 10))
	respond(w, r, http.StatusOK, snap)
}

// getHistory handles GET /health/history?limit=N, most recent first
func (h *handler) getHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, constants.DEFAULT_HISTORY_LIMIT)
	if !ok {
		errorCode(w, r, http.StatusBadRequest, "invalid_limit")
		return
	}
	if limit == 0 {
		respond(w, r, http.StatusOK, []any{})
		return
	}
	respond(w, r, http.StatusOK, h.cache.History(limit))
}
