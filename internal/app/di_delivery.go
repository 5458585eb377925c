package app

import (
	"fmt"

	"github.com/allisson/courier/internal/database"
	deliveryHTTP "github.com/allisson/courier/internal/delivery/http"
	deliveryRepository "github.com/allisson/courier/internal/delivery/repository"
	deliveryUseCase "github.com/allisson/courier/internal/delivery/usecase"
)

// EventRepository returns the delivery event repository based on database driver.
func (c *Container) EventRepository() (deliveryUseCase.EventRepository, error) {
	var err error
	c.eventRepositoryInit.Do(func() {
		c.eventRepository, err = c.initEventRepository()
		if err != nil {
			c.initErrors["eventRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["eventRepository"]; exists {
		return nil, storedErr
	}
	return c.eventRepository, nil
}

// DeliveryUseCase returns the delivery event ingestor.
func (c *Container) DeliveryUseCase() (deliveryUseCase.DeliveryUseCase, error) {
	var err error
	c.deliveryUseCaseInit.Do(func() {
		c.deliveryUseCase, err = c.initDeliveryUseCase()
		if err != nil {
			c.initErrors["deliveryUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["deliveryUseCase"]; exists {
		return nil, storedErr
	}
	return c.deliveryUseCase, nil
}

// EventHandler returns the delivery event and webhook HTTP handler.
func (c *Container) EventHandler() (*deliveryHTTP.EventHandler, error) {
	var err error
	c.eventHandlerInit.Do(func() {
		var useCase deliveryUseCase.DeliveryUseCase
		useCase, err = c.DeliveryUseCase()
		if err != nil {
			err = fmt.Errorf("failed to get delivery use case for event handler: %w", err)
			c.initErrors["eventHandler"] = err
			return
		}
		c.eventHandler = deliveryHTTP.NewEventHandler(useCase, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["eventHandler"]; exists {
		return nil, storedErr
	}
	return c.eventHandler, nil
}

func (c *Container) initEventRepository() (deliveryUseCase.EventRepository, error) {
	if c.config.DBDriver == database.DriverMemory {
		return deliveryRepository.NewMemoryEventRepository(), nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for event repository: %w", err)
	}

	switch database.Dialect(c.config.DBDriver) {
	case database.DriverMySQL:
		return deliveryRepository.NewMySQLEventRepository(db), nil
	case database.DriverPostgres:
		return deliveryRepository.NewPostgreSQLEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initDeliveryUseCase() (deliveryUseCase.DeliveryUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for delivery use case: %w", err)
	}
	events, err := c.EventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get event repository for delivery use case: %w", err)
	}
	messages, err := c.MessageRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get message repository for delivery use case: %w", err)
	}
	suppression, err := c.SuppressionUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get suppression use case for delivery use case: %w", err)
	}
	tracker, err := c.HealthTracker()
	if err != nil {
		return nil, fmt.Errorf("failed to get health tracker for delivery use case: %w", err)
	}

	baseUseCase := deliveryUseCase.NewDeliveryUseCase(
		txManager,
		events,
		messages,
		suppression,
		tracker,
		c.NotificationBus(),
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for delivery use case: %w", err)
		}
		return deliveryUseCase.NewDeliveryUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}
