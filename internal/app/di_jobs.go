package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const jobTimeout = 30 * time.Second

// Scheduler returns the maintenance job scheduler: gateway health snapshots, a
// stale lock report and the expired suppression purge. It is not started.
func (c *Container) Scheduler(ctx context.Context) (*cron.Cron, error) {
	var err error
	c.schedulerInit.Do(func() {
		c.scheduler, err = c.initScheduler(ctx)
		if err != nil {
			c.initErrors["scheduler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["scheduler"]; exists {
		return nil, storedErr
	}
	return c.scheduler, nil
}

func (c *Container) initScheduler(ctx context.Context) (*cron.Cron, error) {
	logger := c.Logger()

	if _, err := c.HealthTracker(); err != nil {
		return nil, fmt.Errorf("failed to get health tracker for scheduler: %w", err)
	}
	if _, err := c.HealthRepository(); err != nil {
		return nil, fmt.Errorf("failed to get health repository for scheduler: %w", err)
	}
	messages, err := c.MessageRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get message repository for scheduler: %w", err)
	}
	suppression, err := c.SuppressionUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get suppression use case for scheduler: %w", err)
	}

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	run := func(name string, fn func(ctx context.Context) error) func() {
		return func() {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			if err := fn(jobCtx); err != nil {
				logger.Error("scheduled job failed", slog.String("job", name), slog.Any("error", err))
			}
		}
	}

	jobs := []struct {
		name string
		spec string
		fn   func(ctx context.Context) error
	}{
		{
			name: "health_snapshot",
			spec: c.config.HealthSnapshotSchedule,
			fn: func(ctx context.Context) error {
				return c.flushHealth(ctx)
			},
		},
		{
			name: "stale_lock_report",
			spec: c.config.StaleLockReportSchedule,
			fn: func(ctx context.Context) error {
				n, err := messages.CountStaleLocks(ctx, time.Now().UTC().Add(-c.config.DispatchLockStaleAfter))
				if err != nil {
					return err
				}
				if n > 0 {
					logger.Warn("stale message locks pending reclaim", slog.Int64("count", n))
				}
				return nil
			},
		},
		{
			name: "suppression_purge",
			spec: c.config.SuppressionSweepSchedule,
			fn: func(ctx context.Context) error {
				n, err := suppression.PurgeExpired(ctx)
				if err != nil {
					return err
				}
				logger.Info("expired suppressions purged", slog.Int64("count", n))
				return nil
			},
		},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := scheduler.AddFunc(job.spec, run(job.name, job.fn)); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", job.spec, job.name, err)
		}
	}

	logger.Info("maintenance jobs scheduled", slog.Int("jobs", len(scheduler.Entries())))
	return scheduler, nil
}
