// Package api exposes the application queue and the auto-apply drivers over
// HTTP, plus an MCP surface for agent clients.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/avelkin/applyq/internal/apply"
	"github.com/avelkin/applyq/internal/profile"
	"github.com/avelkin/applyq/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps holds the handler dependencies.
type AppDeps struct {
	Store       *storage.Store
	Profile     *profile.Manager
	Batch       *apply.BatchDriver
	Live        *apply.LiveDriver
	Runs        *apply.RunService
	Token       string // bearer token for management routes
	BatchSecret string // shared secret for the external batch scheduler
	OwnerID     string // single-user deployment owner
}

// NewAppHandler returns the management API router.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	// The batch trigger authenticates with the scheduler's shared secret,
	// not the management token.
	r.Post("/batch/run", handleBatchRun(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/queue", handleEnqueue(deps))
		r.Get("/queue", handleListQueue(deps))
		r.Get("/queue/stats", handleQueueStats(deps))
		r.Get("/queue/{id}", handleGetEntry(deps))
		r.Post("/queue/{id}/retry", handleRetry(deps))
		r.Post("/queue/{id}/cancel", handleCancel(deps))

		r.Post("/live/enable", handleLiveEnable(deps))
		r.Post("/live/disable", handleLiveDisable(deps))
		r.Get("/live/status", handleLiveStatus(deps))

		r.Post("/runs", handleStartRun(deps))
		r.Get("/runs/{id}", handleRunStatus(deps))

		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// --- queue ---

func handleEnqueue(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var lead storage.JobLead
		if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if lead.ID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "id is required")
			return
		}
		if lead.ApplyURL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "applyUrl is required")
			return
		}

		id, err := deps.Store.Enqueue(deps.OwnerID, lead)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"id":     id,
			"status": string(storage.StatusPending),
		})
	}
}

func handleListQueue(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		entries, err := deps.Store.ListByOwner(deps.OwnerID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list queue: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleQueueStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.Stats(deps.OwnerID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleGetEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := deps.Store.Get(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "entry not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load entry: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func handleRetry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ok, err := deps.Store.Retry(id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found_error", "entry not found")
			return
		case errors.Is(err, storage.ErrConflict):
			httpError(w, http.StatusConflict, "invalid_request_error", "only failed entries can be retried")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to retry: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
	}
}

func handleCancel(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.Cancel(id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found_error", "entry not found")
			return
		case errors.Is(err, storage.ErrConflict):
			httpError(w, http.StatusConflict, "invalid_request_error", "only pending entries can be cancelled")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to cancel: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// --- batch trigger ---

func handleBatchRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get("X-Batch-Secret")
		if deps.BatchSecret == "" ||
			subtle.ConstantTimeCompare([]byte(secret), []byte(deps.BatchSecret)) != 1 {
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing batch secret")
			return
		}

		summary, err := deps.Batch.RunOnce(r.Context(), deps.OwnerID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "batch run failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// --- live driver control ---

func handleLiveEnable(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Live.Enable(deps.OwnerID)
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": true})
	}
}

func handleLiveDisable(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Live.Disable()
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
	}
}

func handleLiveStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := deps.Live.Status()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read live status: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// --- actuation runs ---

func handleStartRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			EntryID string `json:"entryId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.EntryID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "entryId is required")
			return
		}

		runID, err := deps.Runs.StartRun(r.Context(), req.EntryID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found_error", "entry not found")
			return
		case errors.Is(err, storage.ErrConflict):
			httpError(w, http.StatusConflict, "invalid_request_error", "entry is not claimed")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start run: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": runID})
	}
}

func handleRunStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := deps.Runs.RunStatus(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "run not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read run: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// --- applicant profile ---

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profile.Get()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePatchProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var fields map[string]string
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		for key, value := range fields {
			if err := deps.Profile.SetField(key, value); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
		}

		p, err := deps.Profile.Get()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reload profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
