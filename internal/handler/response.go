package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError, so every endpoint has
// the same content type and the same error shape:
//
//	{"error": "validation_error", "message": "invalid fields: address, name",
//	 "fields": {"address": "address is required", "name": "name is required"}}

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/trailmap/internal/apperror"
)

// maxBodyBytes caps request bodies. A place or review is a few hundred bytes.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string            `json:"error"`            // machine-readable kind, e.g. "not_found"
	Message string            `json:"message"`          // human-readable
	Fields  map[string]string `json:"fields,omitempty"` // validation errors only
}

// writeJSON sets headers, then status, then body. Headers changed after the
// first body write are silently dropped, so the order is fixed.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to a status code. The service layer never
// sees HTTP; this switch is the only place sentinels become status codes.
//
// Anything that is not an *apperror.AppError is a storage or programming
// failure: it is logged in full and the client gets a generic 500, never the
// raw message (which may contain SQL or file paths).
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.Error("internal error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	kind := "internal_error"

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthenticated):
		status, kind = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	}

	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: appErr.Message,
		Fields:  appErr.Fields,
	})
}

// decodeJSON reads one JSON value from the body into dst. Unknown fields are
// ignored, so a client echoing averageRating back cannot set it but does not
// fail either.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body", "request body too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		default:
			return apperror.ValidationFailed("body", "invalid JSON body")
		}
	}
	return nil
}
