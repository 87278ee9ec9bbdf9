package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/warp/crewtime/reconcile"
	"github.com/warp/crewtime/remote"
)

// =============================================================================
// HUB HANDLERS - Remote source of truth shared by devices
// =============================================================================

const (
	defaultFeedLimit = 100
	maxFeedLimit     = 1000
)

// HubHandler serves a reconcile.Remote over HTTP for remote.Client.
type HubHandler struct {
	Hub reconcile.Remote
}

// UpsertRecords applies pushed records. A batch with any malformed record
// is rejected whole with 400.
func (h *HubHandler) UpsertRecords(w http.ResponseWriter, r *http.Request) {
	var req remote.UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	outcomes, err := h.Hub.Upsert(r.Context(), req.Records)
	if err != nil {
		writeLedgerError(w, "Failed to store records", err)
		return
	}
	if outcomes == nil {
		outcomes = []reconcile.Outcome{}
	}
	writeJSON(w, http.StatusOK, remote.UpsertResponse{Outcomes: outcomes})
}

// ListRecords serves the change feed after ?since, at most ?limit records.
func (h *HubHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since int64
	if raw := q.Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "Invalid since", err)
			return
		}
		since = v
	}
	limit := defaultFeedLimit
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = min(v, maxFeedLimit)
	}

	page, err := h.Hub.ListSince(r.Context(), since, limit)
	if err != nil {
		writeLedgerError(w, "Failed to read feed", err)
		return
	}
	if page.Records == nil {
		page.Records = []reconcile.Record{}
	}
	writeJSON(w, http.StatusOK, page)
}

// requireBearer rejects requests without the configured bearer token. An
// empty token disables the check.
func requireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
