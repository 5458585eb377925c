// Package integration provides end-to-end integration tests for the Courier API.
// Every flow runs against both PostgreSQL and MySQL.
package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/app"
	"github.com/allisson/courier/internal/config"
	dispatchUseCase "github.com/allisson/courier/internal/dispatch/usecase"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	messageDTO "github.com/allisson/courier/internal/message/http/dto"
	suppressionDTO "github.com/allisson/courier/internal/suppression/http/dto"
	"github.com/allisson/courier/internal/testutil"
)

// integrationTestContext holds all dependencies and state for integration testing.
type integrationTestContext struct {
	container  *app.Container
	dispatcher dispatchUseCase.Dispatcher
	db         *sql.DB
	server     *httptest.Server
	dbDriver   string
}

// makeRequest performs an HTTP request and returns the response and body.
func (ctx *integrationTestContext) makeRequest(
	t *testing.T,
	method, path string,
	body interface{},
) (*http.Response, []byte) {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ctx.server.URL+path, bodyReader)
	require.NoError(t, err, "failed to create request")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	//nolint:gosec // controlled test environment with localhost URLs
	resp, err := client.Do(req)
	require.NoError(t, err, "failed to perform request")

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	if closeErr := resp.Body.Close(); closeErr != nil {
		t.Logf("Warning: failed to close response body: %v", closeErr)
	}

	return resp, respBody
}

// enqueueEmail queues a transactional email and returns its id.
func (ctx *integrationTestContext) enqueueEmail(t *testing.T, address string) uuid.UUID {
	t.Helper()

	subject, body := "Welcome", "Hello from courier"
	resp, respBody := ctx.makeRequest(t, http.MethodPost, "/v1/messages", messageDTO.EnqueueRequest{
		Priority:         "P4",
		MessageType:      "transactional",
		Channel:          "email",
		RecipientAddress: address,
		Subject:          &subject,
		Body:             &body,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(respBody))

	var result messageDomain.EnqueueResult
	require.NoError(t, json.Unmarshal(respBody, &result))
	require.Equal(t, messageDomain.OutcomeAccepted, result.Outcome)
	require.NotNil(t, result.ID)
	return *result.ID
}

// getStatus fetches the status view of a message.
func (ctx *integrationTestContext) getStatus(t *testing.T, id uuid.UUID) messageDomain.StatusView {
	t.Helper()

	resp, body := ctx.makeRequest(t, http.MethodGet, "/v1/messages/"+id.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var view messageDomain.StatusView
	require.NoError(t, json.Unmarshal(body, &view))
	return view
}

// dispatch drains every due message through the embedded dispatcher.
func (ctx *integrationTestContext) dispatch(t *testing.T) int {
	t.Helper()

	n, err := ctx.dispatcher.RunOnce(context.Background())
	require.NoError(t, err, "failed to dispatch")
	return n
}

// postalWebhook posts a Postal event and returns the reported outcome.
func (ctx *integrationTestContext) postalWebhook(t *testing.T, payload map[string]any) string {
	t.Helper()

	resp, body := ctx.makeRequest(t, http.MethodPost, "/v1/webhooks/postal", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	return out["outcome"]
}

// setupIntegrationTest initializes all components for integration testing.
func setupIntegrationTest(t *testing.T, dbDriver string) *integrationTestContext {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var db *sql.DB
	var dsn string
	if dbDriver == "postgres" {
		testutil.SkipIfNoPostgres(t)
		db = testutil.SetupPostgresDB(t)
		dsn = testutil.GetPostgresTestDSN()
	} else {
		testutil.SkipIfNoMySQL(t)
		db = testutil.SetupMySQLDB(t)
		dsn = testutil.GetMySQLTestDSN()
	}

	cfg := &config.Config{
		DBDriver:               dbDriver,
		DBConnectionString:     dsn,
		DBMaxOpenConnections:   10,
		DBMaxIdleConnections:   5,
		DBConnMaxLifetime:      time.Hour,
		ServerHost:             "localhost",
		ServerPort:             8080,
		LogLevel:               "error",
		DispatchWorkerID:       "integration",
		DispatchWorkers:        2,
		DispatchBatchSize:      50,
		DispatchPollInterval:   50 * time.Millisecond,
		DispatchLockStaleAfter: time.Minute,
	}

	container := app.NewContainer(cfg)
	container.EmbedDispatcher()

	dispatcher, err := container.Dispatcher()
	require.NoError(t, err, "failed to get dispatcher")

	httpSrv, err := container.HTTPServer(context.Background())
	require.NoError(t, err, "failed to get HTTP server")

	handler := httpSrv.GetHandler()
	require.NotNil(t, handler, "handler should not be nil after SetupRouter")

	testServer := httptest.NewServer(handler)

	t.Logf("Integration test setup complete for %s", dbDriver)

	return &integrationTestContext{
		container:  container,
		dispatcher: dispatcher,
		db:         db,
		server:     testServer,
		dbDriver:   dbDriver,
	}
}

// teardownIntegrationTest cleans up all resources.
func teardownIntegrationTest(t *testing.T, ctx *integrationTestContext) {
	t.Helper()

	if ctx.server != nil {
		ctx.server.Close()
	}

	if ctx.container != nil {
		if err := ctx.container.Shutdown(context.Background()); err != nil {
			t.Logf("Warning: container shutdown error: %v", err)
		}
	}

	if ctx.db != nil {
		testutil.TeardownDB(t, ctx.db)
	}
}

var testCases = []struct {
	name     string
	dbDriver string
}{
	{"PostgreSQL", "postgres"},
	{"MySQL", "mysql"},
}

func TestIntegration_Health_BasicChecks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)
			defer teardownIntegrationTest(t, ctx)

			t.Run("01_HealthCheck", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodGet, "/health", nil)
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				assert.Contains(t, string(body), "healthy")
			})

			t.Run("02_ReadinessCheck", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodGet, "/ready", nil)
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				assert.Contains(t, string(body), "ready")
			})

			t.Run("03_GatewayHealth", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodGet, "/v1/health/gateways", nil)
				assert.Equal(t, http.StatusOK, resp.StatusCode)

				var out struct {
					Unhealthy int `json:"unhealthy"`
				}
				require.NoError(t, json.Unmarshal(body, &out))
				assert.Equal(t, 0, out.Unhealthy)
			})
		})
	}
}

func TestIntegration_Message_CompleteFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)
			defer teardownIntegrationTest(t, ctx)

			var (
				messageID  uuid.UUID
				externalID string
			)

			t.Run("01_Enqueue", func(t *testing.T) {
				messageID = ctx.enqueueEmail(t, "ana@example.com")

				view := ctx.getStatus(t, messageID)
				assert.Equal(t, messageDomain.StatusPending, view.Status)
				assert.Equal(t, 0, view.Attempts)
			})

			t.Run("02_Dispatch", func(t *testing.T) {
				assert.Equal(t, 1, ctx.dispatch(t))

				view := ctx.getStatus(t, messageID)
				assert.Equal(t, messageDomain.StatusSent, view.Status)
				assert.Equal(t, 1, view.Attempts)
				require.NotNil(t, view.Gateway)
				assert.Equal(t, "postal", *view.Gateway)
				require.NotNil(t, view.ExternalID)
				assert.NotNil(t, view.SentAt)
				externalID = *view.ExternalID
			})

			t.Run("03_DispatchIsIdle", func(t *testing.T) {
				assert.Equal(t, 0, ctx.dispatch(t))
			})

			t.Run("04_DeliveredWebhook", func(t *testing.T) {
				outcome := ctx.postalWebhook(t, map[string]any{
					"event":      "delivered",
					"id":         "evt-delivered-1",
					"message_id": externalID,
				})
				assert.Equal(t, "applied", outcome)

				view := ctx.getStatus(t, messageID)
				assert.Equal(t, messageDomain.StatusSent, view.Status)
				assert.NotNil(t, view.DeliveredAt)
			})

			t.Run("05_ReplayedWebhook", func(t *testing.T) {
				outcome := ctx.postalWebhook(t, map[string]any{
					"event":      "delivered",
					"id":         "evt-delivered-1",
					"message_id": externalID,
				})
				assert.Equal(t, "duplicate", outcome)
			})

			t.Run("06_ListEvents", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodGet, "/v1/messages/"+messageID.String()+"/events", nil)
				require.Equal(t, http.StatusOK, resp.StatusCode)

				var list messageDTO.ListEventsResponse
				require.NoError(t, json.Unmarshal(body, &list))
				require.Len(t, list.Data, 2)

				types := []string{list.Data[0].Type, list.Data[1].Type}
				assert.ElementsMatch(t, []string{"sent", "delivered"}, types)
				assert.Equal(t, 2, testutil.CountRows(t, ctx.db, "delivery_events"))
			})

			t.Run("07_UnknownMessage", func(t *testing.T) {
				resp, _ := ctx.makeRequest(t, http.MethodGet, "/v1/messages/"+uuid.New().String(), nil)
				assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			})

			t.Run("08_InvalidRequest", func(t *testing.T) {
				resp, _ := ctx.makeRequest(t, http.MethodPost, "/v1/messages", map[string]any{
					"priority": "P9",
					"channel":  "fax",
				})
				assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			})
		})
	}
}

func TestIntegration_Cancel_CompleteFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)
			defer teardownIntegrationTest(t, ctx)

			var messageID uuid.UUID

			t.Run("01_EnqueueScheduled", func(t *testing.T) {
				body := "See you tomorrow"
				scheduledFor := time.Now().UTC().Add(24 * time.Hour)
				resp, respBody := ctx.makeRequest(t, http.MethodPost, "/v1/messages", messageDTO.EnqueueRequest{
					Priority:         "P3",
					MessageType:      "transactional",
					Channel:          "sms",
					RecipientAddress: "+15550002222",
					Body:             &body,
					ScheduledFor:     &scheduledFor,
				})
				require.Equal(t, http.StatusAccepted, resp.StatusCode, string(respBody))

				var result messageDomain.EnqueueResult
				require.NoError(t, json.Unmarshal(respBody, &result))
				require.NotNil(t, result.ID)
				messageID = *result.ID
			})

			t.Run("02_NotDueYet", func(t *testing.T) {
				assert.Equal(t, 0, ctx.dispatch(t))
			})

			t.Run("03_Cancel", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodPost, "/v1/messages/"+messageID.String()+"/cancel", nil)
				assert.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))

				view := ctx.getStatus(t, messageID)
				assert.Equal(t, messageDomain.StatusCancelled, view.Status)
			})

			t.Run("04_CancelAgain", func(t *testing.T) {
				resp, _ := ctx.makeRequest(t, http.MethodPost, "/v1/messages/"+messageID.String()+"/cancel", nil)
				assert.Equal(t, http.StatusConflict, resp.StatusCode)
			})
		})
	}
}

func TestIntegration_Suppression_CompleteFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := setupIntegrationTest(t, tc.dbDriver)
			defer teardownIntegrationTest(t, ctx)

			t.Run("01_Suppress", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodPost, "/v1/suppressions", suppressionDTO.SuppressRequest{
					Channel: "email",
					Address: "Blocked@Example.com",
					Reason:  "unsubscribe",
				})
				require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

				var entry suppressionDTO.EntryResponse
				require.NoError(t, json.Unmarshal(body, &entry))
				assert.Equal(t, "blocked@example.com", entry.Address)
			})

			t.Run("02_EnqueueSuppressed", func(t *testing.T) {
				body := "Hello"
				resp, respBody := ctx.makeRequest(t, http.MethodPost, "/v1/messages", messageDTO.EnqueueRequest{
					Priority:         "P4",
					MessageType:      "campaign",
					Channel:          "email",
					RecipientAddress: "blocked@example.com",
					Body:             &body,
				})
				require.Equal(t, http.StatusOK, resp.StatusCode, string(respBody))

				var result messageDomain.EnqueueResult
				require.NoError(t, json.Unmarshal(respBody, &result))
				assert.Equal(t, messageDomain.OutcomeSuppressed, result.Outcome)
				assert.Nil(t, result.ID)
			})

			t.Run("03_BulkSkipsSuppressed", func(t *testing.T) {
				body := "Weekly digest"
				resp, respBody := ctx.makeRequest(t, http.MethodPost, "/v1/messages/bulk", messageDTO.BulkEnqueueRequest{
					Priority:    "P4",
					MessageType: "newsletter",
					Channel:     "email",
					Body:        &body,
					Recipients: []messageDTO.RecipientRequest{
						{Address: "one@example.com"},
						{Address: "blocked@example.com"},
						{Address: "two@example.com"},
					},
				})
				require.Equal(t, http.StatusAccepted, resp.StatusCode, string(respBody))

				var result messageDomain.BulkEnqueueResult
				require.NoError(t, json.Unmarshal(respBody, &result))
				assert.Equal(t, 2, result.Queued)
				assert.Equal(t, 1, result.Suppressed)
			})

			t.Run("04_HardBounceSuppresses", func(t *testing.T) {
				messageID := ctx.enqueueEmail(t, "bouncy@example.com")
				require.GreaterOrEqual(t, ctx.dispatch(t), 1)

				view := ctx.getStatus(t, messageID)
				require.NotNil(t, view.ExternalID)

				outcome := ctx.postalWebhook(t, map[string]any{
					"event":       "bounced",
					"id":          "evt-bounce-1",
					"message_id":  *view.ExternalID,
					"bounce_type": "hard",
					"reason":      "mailbox does not exist",
				})
				assert.Equal(t, "applied", outcome)

				view = ctx.getStatus(t, messageID)
				assert.NotNil(t, view.BouncedAt)

				body := "Hello again"
				resp, respBody := ctx.makeRequest(t, http.MethodPost, "/v1/messages", messageDTO.EnqueueRequest{
					Priority:         "P4",
					MessageType:      "transactional",
					Channel:          "email",
					RecipientAddress: "bouncy@example.com",
					Body:             &body,
				})
				require.Equal(t, http.StatusOK, resp.StatusCode, string(respBody))

				var result messageDomain.EnqueueResult
				require.NoError(t, json.Unmarshal(respBody, &result))
				assert.Equal(t, messageDomain.OutcomeSuppressed, result.Outcome)
			})

			t.Run("05_List", func(t *testing.T) {
				resp, body := ctx.makeRequest(t, http.MethodGet, "/v1/suppressions?limit=10", nil)
				require.Equal(t, http.StatusOK, resp.StatusCode)

				var list suppressionDTO.ListEntriesResponse
				require.NoError(t, json.Unmarshal(body, &list))
				assert.Len(t, list.Data, 2)
			})

			t.Run("06_Unsuppress", func(t *testing.T) {
				query := url.Values{}
				query.Set("channel", "email")
				query.Set("address", "blocked@example.com")

				resp, _ := ctx.makeRequest(t, http.MethodDelete, "/v1/suppressions?"+query.Encode(), nil)
				assert.Equal(t, http.StatusNoContent, resp.StatusCode)

				ctx.enqueueEmail(t, "blocked@example.com")
			})
		})
	}
}
