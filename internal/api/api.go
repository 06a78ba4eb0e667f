// Package api exposes the aggregation engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mnguyen-sec/threatlens/internal/aggregator"
	"github.com/mnguyen-sec/threatlens/internal/intel"
)

// Server holds the HTTP handlers for the threat intelligence API.
type Server struct {
	engine *aggregator.Engine
	logger *zap.Logger
}

// NewServer creates an API server around an engine.
func NewServer(engine *aggregator.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, logger: logger}
}

// Routes returns the router for the /intel API surface.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/query", s.handleQuery)
	r.Post("/query/bulk", s.handleBulkQuery)
	r.Get("/recent", s.handleRecent)
	r.Get("/status", s.handleStatus)
	return r
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q intel.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := s.engine.Query(r.Context(), q)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type bulkRequest struct {
	Queries []intel.Query `json:"queries"`
}

func (s *Server) handleBulkQuery(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := s.engine.BulkQuery(r.Context(), req.Queries)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid hours parameter", "hours must be a positive integer")
			return
		}
		hours = parsed
	}

	report, err := s.engine.Trends(r.Context(), hours)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.engine.Status(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"connections":        status.Connections,
		"errors":             status.Errors,
		"configured_sources": s.engine.ConfiguredSources(),
	})
}

// writeEngineError maps engine failures onto HTTP statuses with a
// human-readable details string, never a raw stack trace.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, intel.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
	case errors.Is(err, intel.ErrBulkLimit):
		writeError(w, http.StatusBadRequest, "bulk query limit exceeded", err.Error())
	case errors.Is(err, intel.ErrNotConfigured):
		writeError(w, http.StatusBadRequest, "source not configured", err.Error())
	case errors.Is(err, intel.ErrAuth):
		writeError(w, http.StatusBadGateway, "source authentication failed", err.Error())
	case errors.Is(err, intel.ErrUnreachable), errors.Is(err, intel.ErrAdapter):
		writeError(w, http.StatusBadGateway, "threat intelligence lookup failed", err.Error())
	default:
		s.logger.Error("query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "threat intelligence lookup failed", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, map[string]string{
		"error":   message,
		"details": details,
	})
}
