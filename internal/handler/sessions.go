package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/ordering-assistant/internal/middleware"
	"github.com/capitalize-ai/ordering-assistant/internal/session"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

// SessionHandler handles session administration endpoints.
type SessionHandler struct {
	assistant Assistant
	logger    *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(assistant Assistant, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		assistant: assistant,
		logger:    log.Named("http"),
	}
}

// ListSessionsResponse lists active sessions.
type ListSessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
	Total    int            `json:"total"`
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	infos := h.assistant.ListActive(r.Context())
	writeJSON(w, http.StatusOK, &ListSessionsResponse{
		Sessions: infos,
		Total:    len(infos),
	})
}

// End handles DELETE /api/v1/sessions/{customerID}
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	if err := middleware.ValidateCustomerID(customerID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.assistant.End(r.Context(), customerID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
