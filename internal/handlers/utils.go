package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/codejam/backend/internal/logging"
	"github.com/codejam/backend/internal/models"
	"github.com/codejam/backend/internal/services"
)

// writeJSON serializes data as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response. If no context/error provided, just writes the response.
// For simple client errors (400-level), use: writeError(w, status, msg)
// For server errors with cause, use: writeErrorWithCause(ctx, w, status, msg, err)
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: message})
}

// writeErrorWithCause writes an error response and logs the error with stack trace.
// Use this for server errors (500-level) where you have an underlying error to log.
func writeErrorWithCause(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	writeError(w, status, message)

	// Don't log 401/403 - handled by security event logging
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return
	}

	if status >= 500 && err != nil {
		wrappedErr := logging.WrapError(err, message)
		logging.LogErrorWithStatus(ctx, status, "error response", wrappedErr)
	}
}

// writeServiceError maps a service sentinel error to its status code. The
// sentinel's detail is shown to the caller; anything else is a 500.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "not found", Message: err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, services.ErrConflict):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: "conflict", Message: err.Error()})
	case errors.Is(err, services.ErrInvalid), errors.Is(err, services.ErrMalformedPayload):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
	default:
		writeErrorWithCause(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

// decodeJSON reads a JSON request body of at most 1 MB into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
