package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery creates a middleware that recovers from handler panics, logs the
// stack trace and returns an RFC 7807 error response.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					correlationID := GetCorrelationID(r.Context())

					logger.Error("HTTP request panic recovered",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("correlation_id", correlationID),
						slog.Any("panic", err),
						slog.String("stack_trace", string(debug.Stack())),
					)

					writeProblem(w, r, http.StatusInternalServerError,
						"An unexpected error occurred while processing the request",
						correlationID, logger)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// writeProblem writes a minimal RFC 7807 problem response from middleware,
// which cannot depend on the api package's error helpers.
func writeProblem(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	detail, correlationID string,
	logger *slog.Logger,
) {
	problem := struct {
		Type          string `json:"type"`
		Title         string `json:"title"`
		Status        int    `json:"status"`
		Detail        string `json:"detail"`
		Instance      string `json:"instance"`
		CorrelationID string `json:"correlationId,omitempty"`
	}{
		Type:          "about:blank",
		Title:         http.StatusText(status),
		Status:        status,
		Detail:        detail,
		Instance:      r.URL.Path,
		CorrelationID: correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		logger.Error("Failed to encode problem response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}
