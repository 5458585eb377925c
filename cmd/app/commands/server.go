package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/courier/internal/app"
	"github.com/allisson/courier/internal/config"
	"github.com/allisson/courier/internal/database"
	dispatchUseCase "github.com/allisson/courier/internal/dispatch/usecase"
	"github.com/allisson/courier/internal/http"
)

// RunServer starts the HTTP API. With embedWorker the dispatcher, notification
// sinks and maintenance jobs run in the same process; the memory driver always
// embeds them since the queue is not shared. Blocks until SIGINT/SIGTERM or a
// fatal error.
func RunServer(ctx context.Context, version string, embedWorker bool) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()

	if cfg.DBDriver == database.DriverMemory && !embedWorker {
		logger.Info("memory driver selected, embedding dispatcher")
		embedWorker = true
	}
	if embedWorker {
		container.EmbedDispatcher()
	}

	logger.Info("starting server",
		slog.String("version", version),
		slog.Bool("embedded_worker", embedWorker),
	)

	defer closeContainer(container, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server, err := container.HTTPServer(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return serve(ctx, container, server, embedWorker)
}

// RunWorker runs the dispatcher, notification sinks and maintenance jobs without
// the HTTP API. Blocks until SIGINT/SIGTERM or a fatal error.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.DBDriver == database.DriverMemory {
		return fmt.Errorf("the worker needs a shared database, use 'server' with the memory driver")
	}

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting worker",
		slog.String("version", version),
		slog.String("worker_id", cfg.DispatchWorkerID),
		slog.Int("workers", cfg.DispatchWorkers),
	)

	defer closeContainer(container, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return serve(ctx, container, nil, true)
}

// serve runs the configured components until ctx is done or one of them fails.
// The notification bus outlives the others so notifications published during
// shutdown are still delivered.
func serve(ctx context.Context, container *app.Container, server *http.Server, withDispatcher bool) error {
	cfg := container.Config()
	logger := container.Logger()

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	var (
		dispatcher dispatchUseCase.Dispatcher
		scheduler  *cron.Cron
	)
	if err := container.ConnectNotificationSinks(); err != nil {
		return err
	}

	if withDispatcher {
		if err := container.RestoreHealth(ctx); err != nil {
			logger.Warn("channel health not restored", slog.Any("error", err))
		}
		if scheduler, err = container.Scheduler(ctx); err != nil {
			return fmt.Errorf("failed to initialize scheduler: %w", err)
		}
		if dispatcher, err = container.Dispatcher(); err != nil {
			return fmt.Errorf("failed to initialize dispatcher: %w", err)
		}
	}

	bus := container.NotificationBus()
	busCtx, stopBus := context.WithCancel(context.Background())
	busDone := make(chan struct{})
	defer func() {
		stopBus()
		<-busDone
	}()

	go func() {
		defer close(busDone)
		_ = bus.Run(busCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)

	if server != nil {
		g.Go(func() error {
			if err := server.Start(gctx); err != nil {
				return fmt.Errorf("api server error: %w", err)
			}
			return nil
		})
	}

	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Start(gctx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}

	if dispatcher != nil {
		scheduler.Start()
		g.Go(func() error {
			if err := dispatcher.Run(gctx); err != nil {
				return fmt.Errorf("dispatcher error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DBConnMaxLifetime)
		defer cancel()

		if server != nil {
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("api server shutdown: %w", err)
			}
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("metrics server shutdown: %w", err)
			}
		}
		return nil
	})

	return g.Wait()
}
