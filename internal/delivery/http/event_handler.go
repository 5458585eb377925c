// Package http exposes delivery event ingestion: a provider-neutral endpoint and the
// webhook receivers of the supported gateways.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	"github.com/allisson/courier/internal/delivery/http/dto"
	deliveryUseCase "github.com/allisson/courier/internal/delivery/usecase"
	"github.com/allisson/courier/internal/httputil"
	customValidation "github.com/allisson/courier/internal/validation"
)

// outcomeIgnored answers webhooks that carry no delivery outcome.
const outcomeIgnored = "ignored"

// EventHandler handles delivery event ingestion.
type EventHandler struct {
	deliveryUseCase deliveryUseCase.DeliveryUseCase
	logger          *slog.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(deliveryUseCase deliveryUseCase.DeliveryUseCase, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		deliveryUseCase: deliveryUseCase,
		logger:          logger,
	}
}

func (h *EventHandler) ingest(c *gin.Context, in deliveryDomain.Inbound) {
	outcome, err := h.deliveryUseCase.Ingest(c.Request.Context(), in)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (h *EventHandler) ignore(c *gin.Context, source string) {
	if h.logger != nil {
		h.logger.Debug("webhook without delivery outcome ignored", slog.String("source", source))
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcomeIgnored})
}

// readJSON binds the body into dst and also decodes it as a generic payload.
func readJSON(c *gin.Context, dst any) (map[string]any, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// IngestHandler ingests a normalized delivery event.
// POST /v1/events
// Returns 200 OK with {"outcome": "applied"|"duplicate"}.
func (h *EventHandler) IngestHandler(c *gin.Context) {
	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	h.ingest(c, req.ToInbound())
}

// PostalWebhookHandler receives Postal webhooks.
// POST /v1/webhooks/postal
func (h *EventHandler) PostalWebhookHandler(c *gin.Context) {
	var req dto.PostalWebhook
	payload, err := readJSON(c, &req)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	in, ok := req.ToInbound(payload)
	if !ok {
		h.ignore(c, dto.SourcePostal)
		return
	}
	h.ingest(c, in)
}

// SESWebhookHandler receives SES events delivered through SNS.
// POST /v1/webhooks/ses
func (h *EventHandler) SESWebhookHandler(c *gin.Context) {
	var envelope dto.SNSEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	in, ok, err := envelope.ToInbound()
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if !ok {
		h.ignore(c, dto.SourceSES)
		return
	}
	h.ingest(c, in)
}

// TwilioWebhookHandler receives Twilio status callbacks.
// POST /v1/webhooks/twilio
func (h *EventHandler) TwilioWebhookHandler(c *gin.Context) {
	var req dto.TwilioWebhook
	if err := c.ShouldBind(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	payload := make(map[string]any, len(c.Request.PostForm))
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			payload[k] = v[0]
		}
	}

	in, ok := req.ToInbound(payload)
	if !ok {
		h.ignore(c, dto.SourceTwilio)
		return
	}
	h.ingest(c, in)
}

// FirebaseWebhookHandler receives push delivery receipts.
// POST /v1/webhooks/firebase
func (h *EventHandler) FirebaseWebhookHandler(c *gin.Context) {
	var req dto.FirebaseWebhook
	payload, err := readJSON(c, &req)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	in, ok := req.ToInbound(payload)
	if !ok {
		h.ignore(c, dto.SourceFirebase)
		return
	}
	h.ingest(c, in)
}
