package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/courier/internal/notification"
)

const notificationBuffer = 1024

// NotificationBus returns the lifecycle notification bus. Sinks are attached by
// ConnectNotificationSinks; until then published notifications are only buffered.
func (c *Container) NotificationBus() *notification.Bus {
	c.notificationBusInit.Do(func() {
		c.notificationBus = notification.NewBus(notificationBuffer, c.Logger())
	})
	return c.notificationBus
}

// ConnectNotificationSinks subscribes the AMQP exchange and the Slack alerter when
// they are configured.
func (c *Container) ConnectNotificationSinks() error {
	bus := c.NotificationBus()
	logger := c.Logger()

	if c.config.AMQPURL != "" {
		sink, conn, err := notification.DialAMQP(c.config.AMQPURL, c.config.AMQPExchange)
		if err != nil {
			return fmt.Errorf("failed to connect notification exchange: %w", err)
		}
		c.mu.Lock()
		c.amqpConn = conn
		c.mu.Unlock()
		bus.Subscribe("amqp", sink)
		logger.Info("notifications published to amqp", slog.String("exchange", c.config.AMQPExchange))
	}

	if c.config.SlackWebhookURL != "" {
		bus.Subscribe("slack", notification.NewSlackAlerter(c.config.SlackWebhookURL))
		logger.Info("slack alerts enabled")
	}

	if c.config.AMQPURL == "" && c.config.SlackWebhookURL == "" {
		bus.Subscribe("log", notification.SinkFunc(func(_ context.Context, n notification.Notification) error {
			logger.Debug("notification", slog.String("kind", string(n.Kind)))
			return nil
		}))
	}
	return nil
}
