// Package notification carries typed outbound notifications from the dispatcher and
// the delivery ingestor to external collaborators (stats updaters, alerting,
// message brokers).
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	healthDomain "github.com/allisson/courier/internal/health/domain"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// Kind names a notification. It doubles as the AMQP routing key.
type Kind string

const (
	KindMessageSent           Kind = "message.sent"
	KindMessageRetryScheduled Kind = "message.retry_scheduled"
	KindMessageFailed         Kind = "message.failed"
	KindMessageExpired        Kind = "message.expired"
	KindMessageCancelled      Kind = "message.cancelled"
	KindMessageDelivered      Kind = "message.delivered"
	KindMessageOpened         Kind = "message.opened"
	KindMessageClicked        Kind = "message.clicked"
	KindMessageBounced        Kind = "message.bounced"
	KindMessageComplained     Kind = "message.complained"
	KindGatewayHealthChanged  Kind = "gateway.health_changed"
)

// Notification is one typed event. Message fields are empty for gateway health
// changes; Health is only set for them.
type Notification struct {
	Kind       Kind                   `json:"kind"`
	MessageID  *uuid.UUID             `json:"message_id,omitempty"`
	Priority   messageDomain.Priority `json:"priority,omitempty"`
	Channel    messageDomain.Channel  `json:"channel,omitempty"`
	Gateway    string                 `json:"gateway,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Attempts   int                    `json:"attempts,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Health     *healthDomain.Record   `json:"health,omitempty"`
}

// ForMessage builds a notification about a queue entry.
func ForMessage(kind Kind, msg *messageDomain.Message, reason string, at time.Time) Notification {
	id := msg.ID
	n := Notification{
		Kind:       kind,
		MessageID:  &id,
		Priority:   msg.Priority,
		Channel:    msg.Channel,
		Reason:     reason,
		Attempts:   msg.Attempts,
		OccurredAt: at,
	}
	if msg.Gateway != nil {
		n.Gateway = *msg.Gateway
	}
	return n
}

// ForHealth builds a gateway health change notification.
func ForHealth(record healthDomain.Record) Notification {
	return Notification{
		Kind:       KindGatewayHealthChanged,
		Channel:    record.Channel,
		Gateway:    record.Gateway,
		OccurredAt: record.LastCheckAt,
		Health:     &record,
	}
}

// IsSLABreach reports whether operators must be alerted: a P0 or P1 message that
// ended failed or expired.
func (n Notification) IsSLABreach() bool {
	if n.Kind != KindMessageFailed && n.Kind != KindMessageExpired {
		return false
	}
	return n.Priority == messageDomain.PriorityP0 || n.Priority == messageDomain.PriorityP1
}

// Publisher is the contract the dispatcher and ingestor emit through.
type Publisher interface {
	Publish(ctx context.Context, n Notification)
}

// Sink receives every published notification.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Publish(context.Context, Notification) {}
