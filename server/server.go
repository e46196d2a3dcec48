// ABOUTME: HTTP API over running executions: status, audit log, and the interrupt Q&A surface.
// ABOUTME: The only caller of interrupt resolution besides tests; resume re-drives the plan executor.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tommoseley/TheCombine-sub006/engine"
)

// Resumer re-drives one execution after an out-of-band interrupt resolution.
// The orchestrator implements this.
type Resumer interface {
	ResumeExecution(ctx context.Context, executionID string) (engine.Status, error)
}

// Server exposes the execution surface over HTTP.
type Server struct {
	router     chi.Router
	states     engine.StateStore
	interrupts *engine.InterruptRegistry
	audit      engine.AuditLog
	resumer    Resumer
	authToken  string
}

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

// WithResumer wires an orchestrator so resolved interrupts can resume their
// execution synchronously through the API.
func WithResumer(r Resumer) ServerOption {
	return func(s *Server) { s.resumer = r }
}

// WithAuthToken requires a bearer token on every request.
func WithAuthToken(token string) ServerOption {
	return func(s *Server) { s.authToken = token }
}

// NewServer creates a Server with all routes configured.
func NewServer(states engine.StateStore, interrupts *engine.InterruptRegistry, audit engine.AuditLog, opts ...ServerOption) *Server {
	s := &Server{
		states:     states,
		interrupts: interrupts,
		audit:      audit,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.authToken != "" {
		r.Use(s.requireAuth)
	}

	r.Get("/executions", s.handleListExecutions)
	r.Get("/executions/{id}", s.handleGetExecution)
	r.Get("/executions/{id}/interrupts", s.handlePendingInterrupts)
	r.Get("/executions/{id}/audit", s.handleAuditEntries)
	r.Post("/executions/{id}/resume", s.handleResume)
	r.Post("/interrupts/{id}/resolve", s.handleResolveInterrupt)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requireAuth rejects requests without the configured bearer token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token != s.authToken {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// executionSummary is the list-view shape for an execution.
type executionSummary struct {
	ExecutionID   string        `json:"execution_id"`
	GraphRef      string        `json:"graph_ref"`
	CurrentNodeID string        `json:"current_node_id"`
	Status        engine.Status `json:"status"`
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	states, err := s.states.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summaries := make([]executionSummary, 0, len(states))
	for _, state := range states {
		summaries = append(summaries, executionSummary{
			ExecutionID:   state.ExecutionID,
			GraphRef:      state.GraphRef,
			CurrentNodeID: state.CurrentNodeID,
			Status:        state.Status,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": summaries})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	state, err := s.states.Load(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, engine.ErrStateNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePendingInterrupts(w http.ResponseWriter, r *http.Request) {
	pending, err := s.interrupts.Pending(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interrupts": pending})
}

func (s *Server) handleAuditEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.audit.Entries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// resolveRequest is the body for POST /interrupts/{id}/resolve.
type resolveRequest struct {
	Payload string `json:"payload"`
}

func (s *Server) handleResolveInterrupt(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	intr, err := s.interrupts.Resolve(r.Context(), chi.URLParam(r, "id"), req.Payload)
	switch {
	case errors.Is(err, engine.ErrInterruptNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, engine.ErrInterruptResolved):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, intr)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.resumer == nil {
		writeError(w, http.StatusServiceUnavailable, "no orchestrator attached; resume unavailable")
		return
	}
	executionID := chi.URLParam(r, "id")
	status, err := s.resumer.ResumeExecution(r.Context(), executionID)
	if errors.Is(err, engine.ErrStateNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"execution_id": executionID, "status": status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
