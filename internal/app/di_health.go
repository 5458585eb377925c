package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/courier/internal/database"
	healthDomain "github.com/allisson/courier/internal/health/domain"
	healthHTTP "github.com/allisson/courier/internal/health/http"
	healthRepository "github.com/allisson/courier/internal/health/repository"
	healthService "github.com/allisson/courier/internal/health/service"
	"github.com/allisson/courier/internal/notification"
)

// healthStore persists tracker snapshots.
type healthStore interface {
	Upsert(ctx context.Context, record healthDomain.Record) error
	List(ctx context.Context) ([]healthDomain.Record, error)
}

// HealthRepository returns the channel health repository based on database driver.
func (c *Container) HealthRepository() (healthStore, error) {
	var err error
	c.healthRepositoryInit.Do(func() {
		c.healthRepository, err = c.initHealthRepository()
		if err != nil {
			c.initErrors["healthRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["healthRepository"]; exists {
		return nil, storedErr
	}
	return c.healthRepository, nil
}

// HealthTracker returns the in-process channel health tracker. Health flips are
// published as gateway.health_changed notifications.
func (c *Container) HealthTracker() (*healthService.Tracker, error) {
	var err error
	c.healthTrackerInit.Do(func() {
		c.healthTracker, err = c.initHealthTracker()
		if err != nil {
			c.initErrors["healthTracker"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["healthTracker"]; exists {
		return nil, storedErr
	}
	return c.healthTracker, nil
}

// HealthHandler returns the gateway health HTTP handler.
func (c *Container) HealthHandler() (*healthHTTP.HealthHandler, error) {
	var err error
	c.healthHandlerInit.Do(func() {
		var tracker *healthService.Tracker
		tracker, err = c.HealthTracker()
		if err != nil {
			err = fmt.Errorf("failed to get health tracker for health handler: %w", err)
			c.initErrors["healthHandler"] = err
			return
		}
		c.healthHandler = healthHTTP.NewHealthHandler(tracker, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["healthHandler"]; exists {
		return nil, storedErr
	}
	return c.healthHandler, nil
}

// RestoreHealth seeds the tracker with the last persisted snapshot so an open
// circuit survives a restart.
func (c *Container) RestoreHealth(ctx context.Context) error {
	tracker, err := c.HealthTracker()
	if err != nil {
		return err
	}
	repo, err := c.HealthRepository()
	if err != nil {
		return err
	}
	records, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load channel health: %w", err)
	}
	tracker.Restore(records)
	c.Logger().Info("channel health restored", slog.Int("gateways", len(records)))
	return nil
}

// flushHealth writes the current tracker snapshot.
func (c *Container) flushHealth(ctx context.Context) error {
	for _, record := range c.healthTracker.Snapshot() {
		if err := c.healthRepository.Upsert(ctx, record); err != nil {
			return fmt.Errorf("failed to persist health of %s: %w", record.Gateway, err)
		}
	}
	return nil
}

func (c *Container) initHealthRepository() (healthStore, error) {
	if c.config.DBDriver == database.DriverMemory {
		return healthRepository.NewMemoryHealthRepository(), nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for health repository: %w", err)
	}

	switch database.Dialect(c.config.DBDriver) {
	case database.DriverMySQL:
		return healthRepository.NewMySQLHealthRepository(db), nil
	case database.DriverPostgres:
		return healthRepository.NewPostgreSQLHealthRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initHealthTracker() (*healthService.Tracker, error) {
	policy, err := c.Policy()
	if err != nil {
		return nil, fmt.Errorf("failed to get policy for health tracker: %w", err)
	}

	logger := c.Logger()
	bus := c.NotificationBus()
	tracker := healthService.NewTracker(policy.Health, func(ctx context.Context, record healthDomain.Record) {
		logger.Warn("gateway health changed",
			slog.String("channel", string(record.Channel)),
			slog.String("gateway", record.Gateway),
			slog.Bool("healthy", record.Healthy),
			slog.Bool("circuit_open", record.CircuitOpen),
		)
		bus.Publish(ctx, notification.ForHealth(record))
	})

	for _, gw := range policy.Gateways {
		tracker.SetCapacity(gw.Channel, gw.Name, gw.Ceiling.PerSecond)
	}
	return tracker, nil
}
