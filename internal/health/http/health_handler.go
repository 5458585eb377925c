// Package http exposes the gateway health snapshot.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	healthDomain "github.com/allisson/courier/internal/health/domain"
)

// Snapshotter returns the current health of every known gateway.
type Snapshotter interface {
	Snapshot() []healthDomain.Record
}

// HealthHandler serves gateway health.
type HealthHandler struct {
	tracker Snapshotter
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(tracker Snapshotter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		tracker: tracker,
		logger:  logger,
	}
}

// GatewaysHandler lists the health of every gateway this process has observed.
// GET /v1/health/gateways
// Returns 200 OK with {"data": [...], "unhealthy": n}.
func (h *HealthHandler) GatewaysHandler(c *gin.Context) {
	records := h.tracker.Snapshot()

	unhealthy := 0
	for _, r := range records {
		if !r.Healthy {
			unhealthy++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      records,
		"unhealthy": unhealthy,
	})
}
