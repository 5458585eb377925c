// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"

	"github.com/allisson/courier/internal/config"
	"github.com/allisson/courier/internal/database"
	deliveryHTTP "github.com/allisson/courier/internal/delivery/http"
	deliveryUseCase "github.com/allisson/courier/internal/delivery/usecase"
	dispatchService "github.com/allisson/courier/internal/dispatch/service"
	dispatchUseCase "github.com/allisson/courier/internal/dispatch/usecase"
	"github.com/allisson/courier/internal/gateway"
	healthHTTP "github.com/allisson/courier/internal/health/http"
	healthService "github.com/allisson/courier/internal/health/service"
	"github.com/allisson/courier/internal/http"
	messageHTTP "github.com/allisson/courier/internal/message/http"
	messageUseCase "github.com/allisson/courier/internal/message/usecase"
	"github.com/allisson/courier/internal/metrics"
	"github.com/allisson/courier/internal/notification"
	rateLimitService "github.com/allisson/courier/internal/ratelimit/service"
	suppressionHTTP "github.com/allisson/courier/internal/suppression/http"
	suppressionUseCase "github.com/allisson/courier/internal/suppression/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config
	policy *config.Policy

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	dispatchMetrics metrics.DispatchMetrics
	amqpConn        *amqp.Connection

	// Managers
	txManager database.TxManager

	// Repositories
	messageRepository     messageStore
	eventRepository       deliveryUseCase.EventRepository
	suppressionRepository suppressionStore
	healthRepository      healthStore
	counterRepository     rateLimitService.CounterRepository

	// Services
	healthTracker   *healthService.Tracker
	rateLimiter     rateLimitService.Limiter
	gatewayRegistry *gateway.Registry
	router          *dispatchService.Router
	notificationBus *notification.Bus

	// Use Cases
	messageUseCase     messageUseCase.MessageUseCase
	deliveryUseCase    deliveryUseCase.DeliveryUseCase
	suppressionUseCase suppressionUseCase.SuppressionUseCase
	dispatcher         dispatchUseCase.Dispatcher

	// HTTP Handlers
	messageHandler     *messageHTTP.MessageHandler
	eventHandler       *deliveryHTTP.EventHandler
	suppressionHandler *suppressionHTTP.SuppressionHandler
	healthHandler      *healthHTTP.HealthHandler

	// Servers and Workers
	httpServer    *http.Server
	metricsServer *http.MetricsServer
	scheduler     *cron.Cron

	// Initialization flags and mutex for thread-safety
	mu                        sync.Mutex
	loggerInit                sync.Once
	policyInit                sync.Once
	dbInit                    sync.Once
	txManagerInit             sync.Once
	metricsProviderInit       sync.Once
	businessMetricsInit       sync.Once
	dispatchMetricsInit       sync.Once
	messageRepositoryInit     sync.Once
	eventRepositoryInit       sync.Once
	suppressionRepositoryInit sync.Once
	healthRepositoryInit      sync.Once
	counterRepositoryInit     sync.Once
	healthTrackerInit         sync.Once
	rateLimiterInit           sync.Once
	gatewayRegistryInit       sync.Once
	routerInit                sync.Once
	notificationBusInit       sync.Once
	messageUseCaseInit        sync.Once
	deliveryUseCaseInit       sync.Once
	suppressionUseCaseInit    sync.Once
	dispatcherInit            sync.Once
	messageHandlerInit        sync.Once
	eventHandlerInit          sync.Once
	suppressionHandlerInit    sync.Once
	healthHandlerInit         sync.Once
	httpServerInit            sync.Once
	metricsServerInit         sync.Once
	schedulerInit             sync.Once
	initErrors                map[string]error

	// embeddedDispatcher makes enqueues wake the in-process dispatcher.
	embeddedDispatcher bool
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// EmbedDispatcher marks the dispatcher as running in the same process as the API so
// enqueues can wake it. Must be called before MessageUseCase is first resolved.
func (c *Container) EmbedDispatcher() {
	c.embeddedDispatcher = true
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// Policy returns the dispatch policy: the built-in defaults overridden by the
// optional YAML policy file.
func (c *Container) Policy() (*config.Policy, error) {
	var err error
	c.policyInit.Do(func() {
		c.policy, err = c.initPolicy()
		if err != nil {
			c.initErrors["policy"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["policy"]; exists {
		return nil, storedErr
	}
	return c.policy, nil
}

// DB returns the database connection. It is nil for the memory driver.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// MetricsProvider returns the Prometheus-backed meter provider, or nil when metrics
// are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		c.metricsProvider, err = metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the use case operation metrics.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// DispatchMetrics returns the dispatcher metrics.
func (c *Container) DispatchMetrics() (metrics.DispatchMetrics, error) {
	var err error
	c.dispatchMetricsInit.Do(func() {
		c.dispatchMetrics, err = c.initDispatchMetrics()
		if err != nil {
			c.initErrors["dispatchMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["dispatchMetrics"]; exists {
		return nil, storedErr
	}
	return c.dispatchMetrics, nil
}

// HTTPServer returns the HTTP server instance with every route registered.
func (c *Container) HTTPServer(ctx context.Context) (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer(ctx)
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.scheduler != nil {
		<-c.scheduler.Stop().Done()
	}

	// persist the last health view so the next process starts from it
	if c.healthTracker != nil && c.healthRepository != nil {
		if err := c.flushHealth(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("health flush: %w", err))
		}
	}

	if c.amqpConn != nil {
		if err := c.amqpConn.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("amqp close: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

func (c *Container) initPolicy() (*config.Policy, error) {
	if c.config.DispatchPolicyFile == "" {
		return config.DefaultPolicy(), nil
	}
	policy, err := config.LoadPolicy(c.config.DispatchPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load dispatch policy: %w", err)
	}
	return policy, nil
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	if c.config.DBDriver == database.DriverMemory {
		return nil, nil
	}
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	if c.config.DBDriver == database.DriverMemory {
		return database.NewPassthroughTxManager(), nil
	}
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

func (c *Container) initDispatchMetrics() (metrics.DispatchMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for dispatch metrics: %w", err)
	}
	if provider == nil {
		return metrics.NoOpDispatchMetrics{}, nil
	}
	return metrics.NewDispatchMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initHTTPServer creates the HTTP server with all its dependencies.
func (c *Container) initHTTPServer(ctx context.Context) (*http.Server, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}
	messageHandler, err := c.MessageHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get message handler for http server: %w", err)
	}
	eventHandler, err := c.EventHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get event handler for http server: %w", err)
	}
	suppressionHandler, err := c.SuppressionHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get suppression handler for http server: %w", err)
	}
	healthHandler, err := c.HealthHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get health handler for http server: %w", err)
	}
	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, c.Logger())
	server.SetupRouter(
		ctx,
		c.config,
		messageHandler,
		eventHandler,
		suppressionHandler,
		healthHandler,
		metricsProvider,
	)
	return server, nil
}

func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}
	if provider == nil {
		return nil, nil
	}
	return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
}
