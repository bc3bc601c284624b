// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ordering-assistant/internal/middleware"
	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/session"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

// Assistant is the engine behind the API. Implemented by service.Assistant.
type Assistant interface {
	Handle(ctx context.Context, customerID, message string) (string, error)
	AddImageItems(ctx context.Context, customerID string, lines []model.ImageLine) ([]session.ImageLineResult, error)
	ListActive(ctx context.Context) []session.Info
	End(ctx context.Context, customerID string) error
}

// MessageHandler handles customer message endpoints.
type MessageHandler struct {
	assistant Assistant
	logger    *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(assistant Assistant, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		assistant: assistant,
		logger:    log.Named("http"),
	}
}

// ImageOrderResponse reports the outcome of every image-derived line.
type ImageOrderResponse struct {
	CustomerID string                    `json:"customer_id"`
	Results    []session.ImageLineResult `json:"results"`
}

// Send handles POST /api/v1/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if err := middleware.ValidateCustomerID(req.CustomerID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	reply, err := h.assistant.Handle(r.Context(), req.CustomerID, req.Message)
	if err != nil {
		h.logFailure(r, "handle message", req.CustomerID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.SendMessageResponse{
		CustomerID: req.CustomerID,
		Reply:      reply,
	})
}

// ImageOrder handles POST /api/v1/image-orders
func (h *MessageHandler) ImageOrder(w http.ResponseWriter, r *http.Request) {
	var req model.ImageOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if err := middleware.ValidateCustomerID(req.CustomerID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := middleware.ValidateImageLines(req.Items); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	results, err := h.assistant.AddImageItems(r.Context(), req.CustomerID, req.Items)
	if err != nil {
		h.logFailure(r, "image order", req.CustomerID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &ImageOrderResponse{
		CustomerID: req.CustomerID,
		Results:    results,
	})
}

func (h *MessageHandler) logFailure(r *http.Request, op, customerID string, err error) {
	if errors.Is(err, model.ErrBusy) || errors.Is(err, model.ErrValidation) {
		return
	}
	h.logger.Error(op,
		zap.String("customer_id", customerID),
		zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		zap.Error(err),
	)
}
