package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"minuteman/internal/logging"
	"minuteman/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", logging.Error(err))
	}
}

type errResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps the service error taxonomy onto HTTP statuses. Transient
// failures are retryable 503s so an upstream retry lands on the same
// idempotent claim path. Work already done by another caller is a success.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrDuplicate):
		writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate_suppressed"})
	case errors.Is(err, services.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, services.ErrParse):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, services.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, services.ErrTransient):
		writeJSON(w, http.StatusServiceUnavailable, errResponse{Error: err.Error(), Retryable: true})
	default:
		logger.Error("request failed", logging.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
