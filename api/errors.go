package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/garnizeh/campusfix/internal/users"
	"github.com/garnizeh/campusfix/pkg/models"
	"github.com/garnizeh/campusfix/pkg/repository"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, errorResponse{Error: msg}, status)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, users.ErrEmailTaken):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status it maps to. what names the failed
// operation, e.g. "fetch issue", and prefixes the message of server errors.
func respondError(w http.ResponseWriter, r *http.Request, err error, what string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), what+" failed", slog.Any("err", err))
		writeError(w, "Failed to "+what+": "+err.Error(), status)
		return
	}
	writeError(w, err.Error(), status)
}

const maxBodyBytes = 1 << 20

// decodeJSON reads a request body into v, writing 400 and returning false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return false
	}
	return true
}
