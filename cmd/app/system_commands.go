package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/courier/cmd/app/commands"
	"github.com/allisson/courier/internal/app"
	"github.com/allisson/courier/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the HTTP API",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "with-worker",
					Aliases: []string{"w"},
					Value:   false,
					Usage:   "Run the dispatcher and maintenance jobs in the same process",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version, cmd.Bool("with-worker"))
			},
		},
		{
			Name:  "worker",
			Usage: "Start the dispatcher and maintenance jobs",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunWorker(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
			},
		},
	}
}
