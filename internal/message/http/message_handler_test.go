package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	"github.com/allisson/courier/internal/message/http/dto"
	"github.com/allisson/courier/internal/message/http/mocks"
)

// setupTestHandler creates a test handler with mocked dependencies.
func setupTestHandler(t *testing.T) (*MessageHandler, *mocks.MockMessageUseCase) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	mockUseCase := &mocks.MockMessageUseCase{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewMessageHandler(mockUseCase, logger), mockUseCase
}

// createTestContext creates a test Gin context with the given request.
func createTestContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	return c, w
}

func TestMessageHandler_EnqueueHandler(t *testing.T) {
	body := "Boil water notice"
	request := dto.EnqueueRequest{
		Priority:         "P1",
		MessageType:      "alert",
		Channel:          "sms",
		RecipientAddress: "+15551234567",
		Body:             &body,
	}

	t.Run("Success_Accepted", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		id := uuid.Must(uuid.NewV7())

		mockUseCase.On("Enqueue", mock.Anything, request.ToInput()).
			Return(&messageDomain.EnqueueResult{ID: &id, Address: "+15551234567", Outcome: messageDomain.OutcomeAccepted}, nil).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/messages", request)
		handler.EnqueueHandler(c)

		assert.Equal(t, http.StatusAccepted, w.Code)
		var response messageDomain.EnqueueResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, id, *response.ID)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("Success_Suppressed", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		mockUseCase.On("Enqueue", mock.Anything, mock.Anything).
			Return(&messageDomain.EnqueueResult{
				Address: "+15551234567",
				Outcome: messageDomain.OutcomeSuppressed,
				Reason:  "unsubscribe",
			}, nil).
			Once()

		c, w := createTestContext(http.MethodPost, "/v1/messages", request)
		handler.EnqueueHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"outcome":"suppressed"`)
	})

	t.Run("Error_Validation", func(t *testing.T) {
		handler, _ := setupTestHandler(t)
		invalid := request
		invalid.Priority = "P9"

		c, w := createTestContext(http.MethodPost, "/v1/messages", invalid)
		handler.EnqueueHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Error_InvalidJSON", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPost, "/v1/messages", nil)
		c.Request.Body = io.NopCloser(bytes.NewBufferString("{"))
		handler.EnqueueHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMessageHandler_EnqueueBulkHandler(t *testing.T) {
	handler, mockUseCase := setupTestHandler(t)
	template := "newsletter-june"
	request := dto.BulkEnqueueRequest{
		Priority:    "P3",
		MessageType: "newsletter",
		Channel:     "email",
		Template:    &template,
		Recipients:  []dto.RecipientRequest{{Address: "a@example.com"}, {Address: "b@example.com"}},
	}

	mockUseCase.On("EnqueueBulk", mock.Anything, request.ToInput()).
		Return(&messageDomain.BulkEnqueueResult{Queued: 1, Suppressed: 1}, nil).
		Once()

	c, w := createTestContext(http.MethodPost, "/v1/messages/bulk", request)
	handler.EnqueueBulkHandler(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var response messageDomain.BulkEnqueueResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Queued)
	assert.Equal(t, 1, response.Suppressed)
}

func TestMessageHandler_GetStatusHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		id := uuid.Must(uuid.NewV7())

		mockUseCase.On("GetStatus", mock.Anything, id).
			Return(&messageDomain.StatusView{ID: id, Status: messageDomain.StatusSent, Attempts: 1}, nil).
			Once()

		c, w := createTestContext(http.MethodGet, "/v1/messages/"+id.String(), nil)
		c.Params = gin.Params{{Key: "id", Value: id.String()}}
		handler.GetStatusHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"sent"`)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		id := uuid.New()

		mockUseCase.On("GetStatus", mock.Anything, id).Return(nil, messageDomain.ErrMessageNotFound).Once()

		c, w := createTestContext(http.MethodGet, "/v1/messages/"+id.String(), nil)
		c.Params = gin.Params{{Key: "id", Value: id.String()}}
		handler.GetStatusHandler(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Error_InvalidID", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodGet, "/v1/messages/abc", nil)
		c.Params = gin.Params{{Key: "id", Value: "abc"}}
		handler.GetStatusHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMessageHandler_CancelHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		id := uuid.New()
		mockUseCase.On("Cancel", mock.Anything, id).Return(nil).Once()

		c, w := createTestContext(http.MethodPost, "/v1/messages/"+id.String()+"/cancel", nil)
		c.Params = gin.Params{{Key: "id", Value: id.String()}}
		handler.CancelHandler(c)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("Error_AlreadyClaimed", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		id := uuid.New()
		mockUseCase.On("Cancel", mock.Anything, id).Return(messageDomain.ErrNotCancellable).Once()

		c, w := createTestContext(http.MethodPost, "/v1/messages/"+id.String()+"/cancel", nil)
		c.Params = gin.Params{{Key: "id", Value: id.String()}}
		handler.CancelHandler(c)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestMessageHandler_ListEventsHandler(t *testing.T) {
	handler, mockUseCase := setupTestHandler(t)
	id := uuid.New()
	external := "evt-1"
	mockUseCase.On("ListEvents", mock.Anything, id).Return([]*deliveryDomain.Event{
		{ID: uuid.New(), MessageID: id, Type: deliveryDomain.EventSent, Source: "dispatcher", OccurredAt: time.Now()},
		{ID: uuid.New(), MessageID: id, Type: deliveryDomain.EventDelivered, Source: "postal", ExternalEventID: &external},
	}, nil).Once()

	c, w := createTestContext(http.MethodGet, "/v1/messages/"+id.String()+"/events", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	handler.ListEventsHandler(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response dto.ListEventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Data, 2)
	assert.Equal(t, "delivered", response.Data[1].Type)
	assert.Equal(t, "evt-1", *response.Data[1].ExternalEventID)
}

func TestMessageHandler_QueueStatsHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		mockUseCase.On("QueueStats", mock.Anything).Return(messageDomain.QueueStats{
			messageDomain.PriorityP0: {messageDomain.StatusSent: 9, messageDomain.StatusFailed: 1},
			messageDomain.PriorityP4: {messageDomain.StatusPending: 250},
		}, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/messages/stats", nil)
		handler.QueueStatsHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.QueueStatsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, map[string]map[string]int64{
			"P0": {"sent": 9, "failed": 1},
			"P4": {"pending": 250},
		}, response.Data)
		assert.Equal(t, int64(260), response.Total)
	})

	t.Run("Success_EmptyQueue", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		mockUseCase.On("QueueStats", mock.Anything).Return(messageDomain.QueueStats{}, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/messages/stats", nil)
		handler.QueueStatsHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":{},"total":0}`, w.Body.String())
	})

	t.Run("Error_Repository", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)
		mockUseCase.On("QueueStats", mock.Anything).Return(nil, errors.New("connection refused")).Once()

		c, w := createTestContext(http.MethodGet, "/v1/messages/stats", nil)
		handler.QueueStatsHandler(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
