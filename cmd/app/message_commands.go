package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/allisson/courier/cmd/app/commands"
	"github.com/allisson/courier/internal/app"
	"github.com/allisson/courier/internal/config"
)

func getMessageCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "message-status",
			Usage: "Show the status of a queued message",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Message ID (UUID)",
				},
				&cli.BoolFlag{
					Name:    "events",
					Aliases: []string{"e"},
					Value:   false,
					Usage:   "Include the delivery event history",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				messageUseCase, err := container.MessageUseCase()
				if err != nil {
					return err
				}

				return commands.RunMessageStatus(
					ctx,
					messageUseCase,
					container.Logger(),
					os.Stdout,
					cmd.String("id"),
					cmd.Bool("events"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "cancel-message",
			Usage: "Cancel a message that has not been sent yet",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Message ID (UUID)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				messageUseCase, err := container.MessageUseCase()
				if err != nil {
					return err
				}

				return commands.RunCancelMessage(
					ctx,
					messageUseCase,
					container.Logger(),
					os.Stdout,
					cmd.String("id"),
					cmd.String("format"),
				)
			},
		},
	}
}
