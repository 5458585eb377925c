package app

import (
	"context"
	"fmt"
	"time"

	"github.com/allisson/courier/internal/database"
	deliveryUseCase "github.com/allisson/courier/internal/delivery/usecase"
	dispatchUseCase "github.com/allisson/courier/internal/dispatch/usecase"
	messageHTTP "github.com/allisson/courier/internal/message/http"
	messageRepository "github.com/allisson/courier/internal/message/repository"
	messageUseCase "github.com/allisson/courier/internal/message/usecase"
)

// messageStore is the full queue store: every driver's repository serves the
// enqueue contract, the dispatcher and the ingestor from one table.
type messageStore interface {
	messageUseCase.MessageRepository
	dispatchUseCase.MessageRepository
	deliveryUseCase.MessageRepository
	CountStaleLocks(ctx context.Context, staleBefore time.Time) (int64, error)
}

// MessageRepository returns the message queue repository based on database driver.
func (c *Container) MessageRepository() (messageStore, error) {
	var err error
	c.messageRepositoryInit.Do(func() {
		c.messageRepository, err = c.initMessageRepository()
		if err != nil {
			c.initErrors["messageRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["messageRepository"]; exists {
		return nil, storedErr
	}
	return c.messageRepository, nil
}

// MessageUseCase returns the enqueue, status and cancel use case.
func (c *Container) MessageUseCase() (messageUseCase.MessageUseCase, error) {
	var err error
	c.messageUseCaseInit.Do(func() {
		c.messageUseCase, err = c.initMessageUseCase()
		if err != nil {
			c.initErrors["messageUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["messageUseCase"]; exists {
		return nil, storedErr
	}
	return c.messageUseCase, nil
}

// MessageHandler returns the message HTTP handler.
func (c *Container) MessageHandler() (*messageHTTP.MessageHandler, error) {
	var err error
	c.messageHandlerInit.Do(func() {
		var useCase messageUseCase.MessageUseCase
		useCase, err = c.MessageUseCase()
		if err != nil {
			err = fmt.Errorf("failed to get message use case for message handler: %w", err)
			c.initErrors["messageHandler"] = err
			return
		}
		c.messageHandler = messageHTTP.NewMessageHandler(useCase, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["messageHandler"]; exists {
		return nil, storedErr
	}
	return c.messageHandler, nil
}

func (c *Container) initMessageRepository() (messageStore, error) {
	if c.config.DBDriver == database.DriverMemory {
		return messageRepository.NewMemoryMessageRepository(), nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for message repository: %w", err)
	}

	switch database.Dialect(c.config.DBDriver) {
	case database.DriverMySQL:
		return messageRepository.NewMySQLMessageRepository(db), nil
	case database.DriverPostgres:
		return messageRepository.NewPostgreSQLMessageRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initMessageUseCase() (messageUseCase.MessageUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for message use case: %w", err)
	}
	repo, err := c.MessageRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get message repository for message use case: %w", err)
	}
	suppression, err := c.SuppressionUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get suppression use case for message use case: %w", err)
	}
	delivery, err := c.DeliveryUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery use case for message use case: %w", err)
	}
	policy, err := c.Policy()
	if err != nil {
		return nil, fmt.Errorf("failed to get policy for message use case: %w", err)
	}

	var waker messageUseCase.Waker
	if c.embeddedDispatcher {
		dispatcher, err := c.Dispatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to get dispatcher for message use case: %w", err)
		}
		waker = dispatcher
	}

	baseUseCase := messageUseCase.NewMessageUseCase(
		txManager,
		repo,
		suppression,
		delivery,
		policy,
		c.NotificationBus(),
		waker,
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for message use case: %w", err)
		}
		return messageUseCase.NewMessageUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}
