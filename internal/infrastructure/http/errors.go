// Package http holds the error reply shape shared by every handler, so a
// build failure, a lifecycle conflict and an unreachable authorizer all come
// back to API clients in the same envelope.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the wire format of every non-2xx reply.
type ErrorResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// WriteError writes a JSON error reply. Message summarizes the failure class
// ("document build failed", "authorizer unreachable"); errors carries the
// individual causes, such as each field a validation pass refused.
func WriteError(w http.ResponseWriter, statusCode int, message string, errors []string, log *slog.Logger) {
	response := ErrorResponse{
		Message: message,
		Errors:  errors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		// the status line is already out; just record the failure
		if log != nil {
			log.Error("failed to encode error response", "error", err)
		}
	}
}
