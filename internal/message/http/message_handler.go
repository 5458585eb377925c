// Package http provides the enqueue, status and cancel endpoints of the message queue.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/courier/internal/httputil"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	"github.com/allisson/courier/internal/message/http/dto"
	messageUseCase "github.com/allisson/courier/internal/message/usecase"
	customValidation "github.com/allisson/courier/internal/validation"
)

// MessageHandler handles HTTP requests for message queue operations.
type MessageHandler struct {
	messageUseCase messageUseCase.MessageUseCase
	logger         *slog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messageUseCase messageUseCase.MessageUseCase, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		messageUseCase: messageUseCase,
		logger:         logger,
	}
}

// EnqueueHandler queues a single message.
// POST /v1/messages
// Returns 202 Accepted when queued, 200 OK with the outcome when the recipient was
// suppressed or invalid.
func (h *MessageHandler) EnqueueHandler(c *gin.Context) {
	var req dto.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	result, err := h.messageUseCase.Enqueue(c.Request.Context(), req.ToInput())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	status := http.StatusOK
	if result.Outcome == messageDomain.OutcomeAccepted {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

// EnqueueBulkHandler queues one message per recipient.
// POST /v1/messages/bulk
// Returns 202 Accepted with per-recipient outcomes.
func (h *MessageHandler) EnqueueBulkHandler(c *gin.Context) {
	var req dto.BulkEnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	result, err := h.messageUseCase.EnqueueBulk(c.Request.Context(), req.ToInput())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// GetStatusHandler returns the status of a message.
// GET /v1/messages/:id
func (h *MessageHandler) GetStatusHandler(c *gin.Context) {
	id, ok := httputil.ParseUUIDParam(c, "id", h.logger)
	if !ok {
		return
	}

	view, err := h.messageUseCase.GetStatus(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, view)
}

// CancelHandler cancels a message that has not been claimed yet.
// POST /v1/messages/:id/cancel
// Returns 204 No Content, or 409 Conflict once a worker claimed the message.
func (h *MessageHandler) CancelHandler(c *gin.Context) {
	id, ok := httputil.ParseUUIDParam(c, "id", h.logger)
	if !ok {
		return
	}

	if err := h.messageUseCase.Cancel(c.Request.Context(), id); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Data(http.StatusNoContent, "application/json", nil)
}

// ListEventsHandler returns the delivery events of a message.
// GET /v1/messages/:id/events
func (h *MessageHandler) ListEventsHandler(c *gin.Context) {
	id, ok := httputil.ParseUUIDParam(c, "id", h.logger)
	if !ok {
		return
	}

	events, err := h.messageUseCase.ListEvents(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEventsToListResponse(events))
}

// QueueStatsHandler returns the queue row counts grouped by priority and status.
// GET /v1/messages/stats
func (h *MessageHandler) QueueStatsHandler(c *gin.Context) {
	stats, err := h.messageUseCase.QueueStats(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapQueueStatsToResponse(stats))
}
