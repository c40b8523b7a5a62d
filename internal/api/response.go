// Package api is the HTTP status surface of the agent. Handlers only read
// from the snapshot cache and hand writes to the backup orchestrator.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"vpsdash/internal/encoding"
)

type errorBody struct {
	Error string `json:"error"`
}

// respond writes payload as JSON, or CBOR when the client asks for it
func respond(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if encoding.WantsCBOR(r.Header.Get("Accept")) {
		data, err := encoding.MarshalCBOR(payload)
		if err == nil {
			w.Header().Set("Content-Type", encoding.ContentTypeCBOR)
			w.WriteHeader(status)
			_, _ = w.Write(data)
			return
		}
	}
	w.Header().Set("Content-Type", encoding.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorCode writes {"error": code}; codes are stable machine-readable strings
func errorCode(w http.ResponseWriter, r *http.Request, status int, code string) {
	respond(w, r, status, errorBody{Error: code})
}

// queryLimit parses ?limit=N. A missing value yields def; anything that is
// not a non-negative integer is an error.
func queryLimit(r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
