package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/courier/cmd/app/commands"
	"github.com/allisson/courier/internal/app"
	"github.com/allisson/courier/internal/config"
)

func addressFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "channel",
			Aliases:  []string{"c"},
			Required: true,
			Usage:    "Channel: 'email', 'sms', 'push' or 'all'",
		},
		&cli.StringFlag{
			Name:     "address",
			Aliases:  []string{"a"},
			Required: true,
			Usage:    "Email address, phone number or device token",
		},
		&cli.Int64Flag{
			Name:  "community-id",
			Value: 0,
			Usage: "Community scope (0 for global)",
		},
	}
}

func getSuppressionCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "suppress",
			Usage: "Add an address to the suppression list",
			Flags: append(addressFlags(),
				&cli.StringFlag{
					Name:    "reason",
					Aliases: []string{"r"},
					Value:   "manual",
					Usage:   "hard_bounce, soft_bounce, complaint, unsubscribe, manual or legal",
				},
				&cli.DurationFlag{
					Name:  "expires-in",
					Value: 0,
					Usage: "Lift the suppression after this duration (0 for permanent)",
				},
				formatFlag(),
			),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				suppressionUseCase, err := container.SuppressionUseCase()
				if err != nil {
					return err
				}

				return commands.RunSuppress(
					ctx,
					suppressionUseCase,
					container.Logger(),
					os.Stdout,
					cmd.String("channel"),
					cmd.String("address"),
					cmd.String("reason"),
					cmd.Int64("community-id"),
					cmd.Duration("expires-in"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "unsuppress",
			Usage: "Remove an address from the suppression list",
			Flags: append(addressFlags(), formatFlag()),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				suppressionUseCase, err := container.SuppressionUseCase()
				if err != nil {
					return err
				}

				return commands.RunUnsuppress(
					ctx,
					suppressionUseCase,
					container.Logger(),
					os.Stdout,
					cmd.String("channel"),
					cmd.String("address"),
					cmd.Int64("community-id"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "purge-suppressions",
			Usage: "Delete suppression entries whose expiry has passed",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				suppressionUseCase, err := container.SuppressionUseCase()
				if err != nil {
					return err
				}

				return commands.RunPurgeSuppressions(
					ctx,
					suppressionUseCase,
					container.Logger(),
					os.Stdout,
					cmd.String("format"),
				)
			},
		},
	}
}
