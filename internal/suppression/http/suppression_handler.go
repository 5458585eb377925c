// Package http provides the suppression list management endpoints.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/courier/internal/httputil"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	"github.com/allisson/courier/internal/suppression/http/dto"
	suppressionUseCase "github.com/allisson/courier/internal/suppression/usecase"
	customValidation "github.com/allisson/courier/internal/validation"
)

// SuppressionHandler handles HTTP requests for suppression list operations.
type SuppressionHandler struct {
	suppressionUseCase suppressionUseCase.SuppressionUseCase
	logger             *slog.Logger
}

// NewSuppressionHandler creates a new suppression handler.
func NewSuppressionHandler(
	suppressionUseCase suppressionUseCase.SuppressionUseCase,
	logger *slog.Logger,
) *SuppressionHandler {
	return &SuppressionHandler{
		suppressionUseCase: suppressionUseCase,
		logger:             logger,
	}
}

// SuppressHandler adds or refreshes a suppression.
// POST /v1/suppressions
// Returns 201 Created with the entry.
func (h *SuppressionHandler) SuppressHandler(c *gin.Context) {
	var req dto.SuppressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	entry, err := h.suppressionUseCase.Suppress(c.Request.Context(), req.ToInput())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapEntryToResponse(entry))
}

// UnsuppressHandler removes a suppression.
// DELETE /v1/suppressions?channel=email&address=a@b.c
// Returns 204 No Content.
func (h *SuppressionHandler) UnsuppressHandler(c *gin.Context) {
	var req dto.UnsuppressRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	err := h.suppressionUseCase.Unsuppress(
		c.Request.Context(),
		messageDomain.Channel(req.Channel),
		req.Address,
		req.CommunityID,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Data(http.StatusNoContent, "application/json", nil)
}

// ListHandler lists suppression entries with pagination.
// GET /v1/suppressions?offset=0&limit=50
func (h *SuppressionHandler) ListHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	entries, err := h.suppressionUseCase.List(c.Request.Context(), offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEntriesToListResponse(entries))
}
