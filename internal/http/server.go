// Package http provides HTTP server implementation and request handlers.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/courier/internal/config"
	deliveryHTTP "github.com/allisson/courier/internal/delivery/http"
	healthHTTP "github.com/allisson/courier/internal/health/http"
	messageHTTP "github.com/allisson/courier/internal/message/http"
	"github.com/allisson/courier/internal/metrics"
	suppressionHTTP "github.com/allisson/courier/internal/suppression/http"
)

// Server represents the HTTP server
type Server struct {
	db     *sql.DB
	server *http.Server
	router *gin.Engine
	logger *slog.Logger
}

// NewServer creates a new HTTP server. db may be nil when the memory driver is used.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter configures the Gin router with every route of the API.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	messageHandler *messageHTTP.MessageHandler,
	eventHandler *deliveryHTTP.EventHandler,
	suppressionHandler *suppressionHTTP.SuppressionHandler,
	healthHandler *healthHTTP.HealthHandler,
	metricsProvider *metrics.Provider,
) {
	gin.SetMode(cfg.GetGinMode())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if cors := newCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); cors != nil {
		router.Use(cors)
	}
	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")

	messages := v1.Group("/messages")
	{
		messages.POST("", messageHandler.EnqueueHandler)
		messages.POST("/bulk", messageHandler.EnqueueBulkHandler)
		messages.GET("/stats", messageHandler.QueueStatsHandler)
		messages.GET("/:id", messageHandler.GetStatusHandler)
		messages.POST("/:id/cancel", messageHandler.CancelHandler)
		messages.GET("/:id/events", messageHandler.ListEventsHandler)
	}

	v1.POST("/events", eventHandler.IngestHandler)

	webhooks := v1.Group("/webhooks")
	if cfg.WebhookRateLimitEnabled {
		webhooks.Use(deliveryHTTP.WebhookRateLimitMiddleware(
			ctx,
			cfg.WebhookRateLimitRequestsPerSec,
			cfg.WebhookRateLimitBurst,
			s.logger,
		))
	}
	{
		webhooks.POST("/postal", eventHandler.PostalWebhookHandler)
		webhooks.POST("/ses", eventHandler.SESWebhookHandler)
		webhooks.POST("/twilio", eventHandler.TwilioWebhookHandler)
		webhooks.POST("/firebase", eventHandler.FirebaseWebhookHandler)
	}

	suppressions := v1.Group("/suppressions")
	{
		suppressions.POST("", suppressionHandler.SuppressHandler)
		suppressions.DELETE("", suppressionHandler.UnsuppressHandler)
		suppressions.GET("", suppressionHandler.ListHandler)
	}

	v1.GET("/health/gateways", healthHandler.GatewaysHandler)

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports ready when the database answers a ping. Without a
// database (memory driver) the process is always ready.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{}
	ready := true

	if s.db == nil {
		components["database"] = "in_memory"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("readiness database ping failed", slog.Any("error", err))
			components["database"] = "error"
			ready = false
		} else {
			components["database"] = "ok"
		}
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}
