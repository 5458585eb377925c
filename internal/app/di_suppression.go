package app

import (
	"fmt"

	"github.com/allisson/courier/internal/database"
	suppressionHTTP "github.com/allisson/courier/internal/suppression/http"
	suppressionRepository "github.com/allisson/courier/internal/suppression/repository"
	suppressionUseCase "github.com/allisson/courier/internal/suppression/usecase"
)

// suppressionStore holds the suppression list and the soft bounce counters, which
// share one repository per driver.
type suppressionStore interface {
	suppressionUseCase.SuppressionRepository
	suppressionUseCase.SoftBounceRepository
}

// SuppressionRepository returns the suppression repository based on database driver.
func (c *Container) SuppressionRepository() (suppressionStore, error) {
	var err error
	c.suppressionRepositoryInit.Do(func() {
		c.suppressionRepository, err = c.initSuppressionRepository()
		if err != nil {
			c.initErrors["suppressionRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["suppressionRepository"]; exists {
		return nil, storedErr
	}
	return c.suppressionRepository, nil
}

// SuppressionUseCase returns the suppression store use case.
func (c *Container) SuppressionUseCase() (suppressionUseCase.SuppressionUseCase, error) {
	var err error
	c.suppressionUseCaseInit.Do(func() {
		c.suppressionUseCase, err = c.initSuppressionUseCase()
		if err != nil {
			c.initErrors["suppressionUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["suppressionUseCase"]; exists {
		return nil, storedErr
	}
	return c.suppressionUseCase, nil
}

// SuppressionHandler returns the suppression HTTP handler.
func (c *Container) SuppressionHandler() (*suppressionHTTP.SuppressionHandler, error) {
	var err error
	c.suppressionHandlerInit.Do(func() {
		var useCase suppressionUseCase.SuppressionUseCase
		useCase, err = c.SuppressionUseCase()
		if err != nil {
			err = fmt.Errorf("failed to get suppression use case for suppression handler: %w", err)
			c.initErrors["suppressionHandler"] = err
			return
		}
		c.suppressionHandler = suppressionHTTP.NewSuppressionHandler(useCase, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["suppressionHandler"]; exists {
		return nil, storedErr
	}
	return c.suppressionHandler, nil
}

func (c *Container) initSuppressionRepository() (suppressionStore, error) {
	if c.config.DBDriver == database.DriverMemory {
		return suppressionRepository.NewMemorySuppressionRepository(), nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for suppression repository: %w", err)
	}

	switch database.Dialect(c.config.DBDriver) {
	case database.DriverMySQL:
		return suppressionRepository.NewMySQLSuppressionRepository(db), nil
	case database.DriverPostgres:
		return suppressionRepository.NewPostgreSQLSuppressionRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initSuppressionUseCase() (suppressionUseCase.SuppressionUseCase, error) {
	repo, err := c.SuppressionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get suppression repository for suppression use case: %w", err)
	}
	policy, err := c.Policy()
	if err != nil {
		return nil, fmt.Errorf("failed to get policy for suppression use case: %w", err)
	}

	baseUseCase := suppressionUseCase.NewSuppressionUseCase(repo, repo, policy.Suppression, c.Logger())

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for suppression use case: %w", err)
		}
		return suppressionUseCase.NewSuppressionUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}
