package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel is the subset of *amqp.Channel the sink publishes through.
type AMQPChannel interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
}

// AMQPSink publishes notifications as persistent JSON messages to a topic exchange,
// routed by notification kind.
type AMQPSink struct {
	channel        AMQPChannel
	exchange       string
	publishTimeout time.Duration
}

// NewAMQPSink creates an AMQPSink publishing on an already declared exchange.
func NewAMQPSink(channel AMQPChannel, exchange string) *AMQPSink {
	return &AMQPSink{channel: channel, exchange: exchange, publishTimeout: 5 * time.Second}
}

// DialAMQP connects to the broker, declares a durable topic exchange and returns a
// sink bound to it together with the connection to close on shutdown.
func DialAMQP(url, exchange string) (*AMQPSink, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return NewAMQPSink(ch, exchange), conn, nil
}

// Deliver publishes n.
func (s *AMQPSink) Deliver(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	headers := amqp.Table{"kind": string(n.Kind)}
	if n.MessageID != nil {
		headers["message_id"] = n.MessageID.String()
	}

	publishing := amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.OccurredAt,
		Type:         string(n.Kind),
		Body:         body,
	}
	if n.MessageID != nil {
		publishing.MessageId = n.MessageID.String()
	}

	if err := s.channel.PublishWithContext(ctx, s.exchange, string(n.Kind), false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
