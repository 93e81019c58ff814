package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
//	writeJSON(w, http.StatusOK, data)
//	writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//
//	{"error": "not_found", "message": "todo not found with id 7"}
//
// Validation errors also name the offending field:
//
//	{"error": "validation_error", "message": "title is required", "field": "title"}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/todo-tracker/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Set for validation errors
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written; once Encode
// starts writing, header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
//
//	apperror.ErrValidation → 400
//	apperror.ErrNotFound   → 404
//	apperror.ErrConflict   → 409
//	apperror.ErrBusy       → 503 + Retry-After (another process holds the database lock)
//	apperror.ErrStorage    → 500 (details are logged, never sent)
//	anything else          → 500
//
// errors.Is walks the whole chain, so the service's "updating todo 7: ..."
// wrapper around an AppError still maps correctly.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperror.ErrValidation):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: appErr.Message,
				Field:   appErr.Field,
			})
			return
		case errors.Is(err, apperror.ErrNotFound):
			writeJSON(w, http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: appErr.Message,
			})
			return
		case errors.Is(err, apperror.ErrConflict):
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Error:   "conflict",
				Message: appErr.Message,
			})
			return
		case errors.Is(err, apperror.ErrBusy):
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
				Error:   "busy",
				Message: "The database is busy, try again shortly",
			})
			return
		}
	}

	// Storage failures and unknown errors: a generic 500.
	// NEVER expose internal error details to the client; the raw message may
	// contain SQL, file paths or driver output.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
