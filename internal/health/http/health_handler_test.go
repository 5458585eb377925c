package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/config"
	healthDomain "github.com/allisson/courier/internal/health/domain"
	"github.com/allisson/courier/internal/health/service"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

func TestHealthHandler_GatewaysHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	tracker := service.NewTracker(config.HealthPolicy{FailureThreshold: 2, OpenTimeout: time.Minute}, nil)
	tracker.RecordSuccess(ctx, messageDomain.ChannelEmail, "postal", 20*time.Millisecond)
	tracker.RecordFailure(ctx, messageDomain.ChannelSMS, "twilio", "timeout", 0)
	tracker.RecordFailure(ctx, messageDomain.ChannelSMS, "twilio", "timeout", 0)

	handler := NewHealthHandler(tracker, slog.New(slog.NewTextHandler(io.Discard, nil)))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/health/gateways", nil)

	handler.GatewaysHandler(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data      []healthDomain.Record `json:"data"`
		Unhealthy int                   `json:"unhealthy"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Data, 2)
	assert.Equal(t, 1, response.Unhealthy)
	assert.Equal(t, "postal", response.Data[0].Gateway)
	assert.True(t, response.Data[1].CircuitOpen)
}
