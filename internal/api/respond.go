package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"chartgate/internal/subscription"
	"chartgate/pkg/storage/postgres"

	"go.uber.org/zap"
)

type envelope struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, postgres.ErrNotFound), errors.Is(err, subscription.ErrPlanNotFound):
		return http.StatusNotFound
	case errors.Is(err, postgres.ErrDuplicateHash):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)

	var verr *ValidationError
	if errors.As(err, &verr) {
		writeError(w, status, "validation error", verr.Problems...)
		return
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zapRequestID(r), zap.Error(err))
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}
