package app

import (
	"fmt"

	"github.com/allisson/courier/internal/database"
	dispatchService "github.com/allisson/courier/internal/dispatch/service"
	dispatchUseCase "github.com/allisson/courier/internal/dispatch/usecase"
	"github.com/allisson/courier/internal/gateway"
	rateLimitRepository "github.com/allisson/courier/internal/ratelimit/repository"
	rateLimitService "github.com/allisson/courier/internal/ratelimit/service"
)

// CounterRepository returns the rate limit counter repository based on database driver.
func (c *Container) CounterRepository() (rateLimitService.CounterRepository, error) {
	var err error
	c.counterRepositoryInit.Do(func() {
		c.counterRepository, err = c.initCounterRepository()
		if err != nil {
			c.initErrors["counterRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["counterRepository"]; exists {
		return nil, storedErr
	}
	return c.counterRepository, nil
}

// RateLimiter returns the shared-state limiter.
func (c *Container) RateLimiter() (rateLimitService.Limiter, error) {
	var err error
	c.rateLimiterInit.Do(func() {
		var repo rateLimitService.CounterRepository
		repo, err = c.CounterRepository()
		if err != nil {
			err = fmt.Errorf("failed to get counter repository for rate limiter: %w", err)
			c.initErrors["rateLimiter"] = err
			return
		}
		c.rateLimiter = rateLimitService.NewStoreLimiter(repo, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["rateLimiter"]; exists {
		return nil, storedErr
	}
	return c.rateLimiter, nil
}

// GatewayRegistry returns the adapter registry. Every configured gateway is backed
// by a sandbox adapter; provider SDK adapters register under the same names.
func (c *Container) GatewayRegistry() (*gateway.Registry, error) {
	var err error
	c.gatewayRegistryInit.Do(func() {
		c.gatewayRegistry, err = c.initGatewayRegistry()
		if err != nil {
			c.initErrors["gatewayRegistry"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["gatewayRegistry"]; exists {
		return nil, storedErr
	}
	return c.gatewayRegistry, nil
}

// Router returns the gateway router backed by the health tracker.
func (c *Container) Router() (*dispatchService.Router, error) {
	var err error
	c.routerInit.Do(func() {
		c.router, err = c.initRouter()
		if err != nil {
			c.initErrors["router"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["router"]; exists {
		return nil, storedErr
	}
	return c.router, nil
}

// Dispatcher returns the queue dispatcher.
func (c *Container) Dispatcher() (dispatchUseCase.Dispatcher, error) {
	var err error
	c.dispatcherInit.Do(func() {
		c.dispatcher, err = c.initDispatcher()
		if err != nil {
			c.initErrors["dispatcher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["dispatcher"]; exists {
		return nil, storedErr
	}
	return c.dispatcher, nil
}

func (c *Container) initCounterRepository() (rateLimitService.CounterRepository, error) {
	if c.config.DBDriver == database.DriverMemory {
		return rateLimitRepository.NewMemoryCounterRepository(), nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for counter repository: %w", err)
	}

	switch database.Dialect(c.config.DBDriver) {
	case database.DriverMySQL:
		return rateLimitRepository.NewMySQLCounterRepository(db), nil
	case database.DriverPostgres:
		return rateLimitRepository.NewPostgreSQLCounterRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initGatewayRegistry() (*gateway.Registry, error) {
	policy, err := c.Policy()
	if err != nil {
		return nil, fmt.Errorf("failed to get policy for gateway registry: %w", err)
	}
	registry, err := gateway.NewSandboxRegistry(policy, c.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway registry: %w", err)
	}
	return registry, nil
}

func (c *Container) initRouter() (*dispatchService.Router, error) {
	policy, err := c.Policy()
	if err != nil {
		return nil, fmt.Errorf("failed to get policy for router: %w", err)
	}
	tracker, err := c.HealthTracker()
	if err != nil {
		return nil, fmt.Errorf("failed to get health tracker for router: %w", err)
	}
	return dispatchService.NewRouter(policy, tracker), nil
}

func (c *Container) initDispatcher() (dispatchUseCase.Dispatcher, error) {
	policy, err := c.Policy()
	if err != nil {
		return nil, fmt.Errorf("failed to get policy for dispatcher: %w", err)
	}
	if err := policy.CheckLockWindow(c.config.DispatchLockStaleAfter); err != nil {
		return nil, err
	}
	messages, err := c.MessageRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get message repository for dispatcher: %w", err)
	}
	suppression, err := c.SuppressionUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get suppression use case for dispatcher: %w", err)
	}
	router, err := c.Router()
	if err != nil {
		return nil, fmt.Errorf("failed to get router for dispatcher: %w", err)
	}
	limiter, err := c.RateLimiter()
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limiter for dispatcher: %w", err)
	}
	registry, err := c.GatewayRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway registry for dispatcher: %w", err)
	}
	delivery, err := c.DeliveryUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery use case for dispatcher: %w", err)
	}
	dispatchMetrics, err := c.DispatchMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch metrics for dispatcher: %w", err)
	}

	return dispatchUseCase.NewDispatcher(
		dispatchUseCase.Config{
			WorkerID:       c.config.DispatchWorkerID,
			Workers:        c.config.DispatchWorkers,
			BatchSize:      c.config.DispatchBatchSize,
			PollInterval:   c.config.DispatchPollInterval,
			LockStaleAfter: c.config.DispatchLockStaleAfter,
		},
		policy,
		messages,
		suppression,
		router,
		limiter,
		registry,
		delivery,
		c.NotificationBus(),
		dispatchMetrics,
		c.Logger(),
	), nil
}
