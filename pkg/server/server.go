// Package server provides the HTTP admin surface: trigger a cycle, read
// status, read a run's decision log.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/orchestrator"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/store"
)

// Server handles the admin API endpoints.
type Server struct {
	orch  *orchestrator.Orchestrator
	store *store.Store
}

// New creates a new Server.
func New(orch *orchestrator.Orchestrator, st *store.Store) *Server {
	return &Server{orch: orch, store: st}
}

// Router builds the admin API router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.Health)
	r.Post("/api/sync", s.TriggerSync)
	r.Get("/api/status", s.Status)
	r.Get("/api/runs/{runID}", s.RunLog)

	return r
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TriggerSync handles POST /api/sync. A trigger while a cycle is in flight
// is rejected with 409, not queued.
func (s *Server) TriggerSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.orch.RunCycle(r.Context())
	if errors.Is(err, orchestrator.ErrCycleInProgress) {
		writeJSONError(w, http.StatusConflict, "cycle_in_progress", "A sync cycle is already running")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// StatusResponse represents the response for GET /api/status.
type StatusResponse struct {
	Watermarks []store.SyncWatermark `json:"watermarks"`
	Stats      *store.Stats          `json:"stats"`
}

// Status handles GET /api/status.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	watermarks, err := s.store.Watermarks()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to read watermarks")
		return
	}

	stats, err := s.store.GetStats()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to read statistics")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Watermarks: watermarks, Stats: stats})
}

// RunLogResponse represents the response for GET /api/runs/{runID}.
type RunLogResponse struct {
	RunID   string               `json:"run_id"`
	Entries []store.SyncLogEntry `json:"entries"`
}

// RunLog handles GET /api/runs/{runID}.
func (s *Server) RunLog(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	entries, err := s.store.LogEntriesByRun(runID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to read run log")
		return
	}
	if len(entries) == 0 {
		writeJSONError(w, http.StatusNotFound, "not_found", "No decisions recorded for this run")
		return
	}

	writeJSON(w, http.StatusOK, RunLogResponse{RunID: runID, Entries: entries})
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, ErrorResponse{Error: code, ErrorDescription: description})
}
