package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/conductor-io/conductor/internal/api/middleware"
)

const (
	healthCheckTimeout = 2 * time.Second
	serviceVersion     = "v2.0.0"
)

// HealthStatus represents the health check response structure.
type HealthStatus struct {
	Status      string `json:"status"`
	ServiceName string `json:"serviceName"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime,omitempty"`
}

// setupRoutes sets up all HTTP routes for the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Probes
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Dataset control plane
	mux.HandleFunc("POST /api/v2/datasets", s.handleCreateDataset)
	mux.HandleFunc("GET /api/v2/datasets", s.handleListDatasets)
	mux.HandleFunc("GET /api/v2/datasets/{id}", s.handleGetDataset)
	mux.HandleFunc("PATCH /api/v2/datasets/{id}", s.handleUpdateDataset)
	mux.HandleFunc("POST /api/v2/datasets/{id}/transition", s.handleTransitionDataset)
	mux.HandleFunc("GET /api/v2/datasets/{id}/transformations", s.handleListTransformations)

	// Event ingestion
	mux.HandleFunc("POST /api/v2/data/in/{id}", s.handleIngestEvents)

	// Catch-all 404
	mux.HandleFunc("/", s.handleNotFound)
}

// handlePing responds to liveness probes.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}

// handleReady responds to readiness probes after checking the storage
// backend. A failing database check returns 503 so traffic is routed away
// until the connection recovers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if s.health == nil {
		s.logger.Warn("Health checker not configured - readiness check degraded",
			slog.String("correlation_id", correlationID),
		)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.health.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unavailable"))

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleHealth returns detailed health status information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: "conductor",
		Version:     serviceVersion,
		Uptime:      uptime,
	}

	s.writeJSON(w, r, http.StatusOK, health)
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown
// endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// writeJSON marshals v and writes it with the given status. Marshal failures
// become a 500 problem response; write failures after headers are sent are
// only logged.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// decodeJSON reads and decodes a JSON request body with the configured size
// cap. Unknown fields are rejected so typos in config payloads fail loudly.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		return errNotJSON
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	return dec.Decode(v)
}

var errNotJSON = &jsonContentTypeError{}

type jsonContentTypeError struct{}

func (*jsonContentTypeError) Error() string {
	return "Content-Type must be application/json"
}

// hasJSONContentType checks if the Content-Type header starts with
// "application/json", allowing charset parameters.
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}
