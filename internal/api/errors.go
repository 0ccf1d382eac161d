package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/conductor-io/conductor/internal/api/middleware"
	"github.com/conductor-io/conductor/internal/dataset"
)

// ProblemDetail represents an RFC 7807 Problem Details structure.
// See https://tools.ietf.org/html/rfc7807 for the specification.
type ProblemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	Code          string `json:"code,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// NewProblemDetail creates a new RFC 7807 Problem Detail.
func NewProblemDetail(status int, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("https://conductor.io/problems/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// WithCode attaches the stable machine-readable error code.
func (p *ProblemDetail) WithCode(code string) *ProblemDetail {
	p.Code = code

	return p
}

// WriteErrorResponse writes an RFC 7807 compliant error response.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, problem *ProblemDetail) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if problem.CorrelationID == "" {
		problem.CorrelationID = correlationID
	}

	if problem.Instance == "" {
		problem.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		logger.Error("Failed to encode error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.Any("encode_error", err),
			slog.Int("status", problem.Status),
		)

		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeDatasetError maps a control plane error onto an HTTP status and writes
// the RFC 7807 response. Internal and upstream failures are logged with their
// cause; the response body only carries the message.
func (s *Server) writeDatasetError(w http.ResponseWriter, r *http.Request, err error) {
	kind := dataset.KindOf(err)
	code := dataset.CodeOf(err)

	var problem *ProblemDetail

	switch kind {
	case dataset.KindNotFound:
		problem = NewProblemDetail(http.StatusNotFound, "Not Found", err.Error())
	case dataset.KindConflict:
		problem = NewProblemDetail(http.StatusConflict, "Conflict", err.Error())
	case dataset.KindInvalidInput:
		problem = NewProblemDetail(http.StatusBadRequest, "Bad Request", err.Error())
	case dataset.KindUpstream:
		s.logger.Error("Upstream collaborator failure",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		problem = NewProblemDetail(http.StatusInternalServerError, "Internal Server Error",
			"An upstream dependency failed while processing the request")
	case dataset.KindInternal:
		fallthrough
	default:
		s.logger.Error("Internal failure",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		problem = NewProblemDetail(http.StatusInternalServerError, "Internal Server Error",
			"An unexpected error occurred while processing the request")
	}

	WriteErrorResponse(w, r, s.logger, problem.WithCode(code))
}

// BadRequest creates a 400 Bad Request problem.
func BadRequest(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusBadRequest, "Bad Request", detail)
}

// NotFound creates a 404 Not Found problem.
func NotFound(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusNotFound, "Not Found", detail)
}

// InternalServerError creates a 500 Internal Server Error problem.
func InternalServerError(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusInternalServerError, "Internal Server Error", detail)
}
