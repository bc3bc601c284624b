package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, &model.ErrorEvent{
		Code:    code,
		Message: message,
	})
}

// writeServiceError maps an assistant error to a response.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, &model.ErrorEvent{
			Code:       "busy",
			Message:    "a previous message from this customer is still being processed",
			RetryAfter: 1,
		})
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, model.ErrAlreadyCommitted):
		writeError(w, http.StatusConflict, "already_committed", err.Error())
	case errors.Is(err, model.ErrBackendUnavailable):
		writeError(w, http.StatusServiceUnavailable, "backend_unavailable", "a backing service is unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
