// Package usecase implements the delivery event ingestor: it reconciles provider
// callbacks and dispatcher attempts into delivery events, message markers,
// suppressions and channel health.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// EventRepository persists delivery events.
type EventRepository interface {
	// Append stores the event. Returns ErrDuplicateEvent when (source,
	// external_event_id) was already stored.
	Append(ctx context.Context, event *deliveryDomain.Event) error
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]*deliveryDomain.Event, error)
}

// MessageRepository is the subset of the queue store the ingestor writes to. It only
// touches delivery markers, never the status.
type MessageRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*messageDomain.Message, error)
	GetByExternalID(ctx context.Context, externalID string) (*messageDomain.Message, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkOpened(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkClicked(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkBounced(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
}

// Suppressor records bounces and complaints against the suppression list.
type Suppressor interface {
	RecordHardBounce(ctx context.Context, channel messageDomain.Channel, address, source string) error
	RecordSoftBounce(ctx context.Context, channel messageDomain.Channel, address, source string) (bool, error)
	RecordComplaint(ctx context.Context, channel messageDomain.Channel, address, source string) error
}

// HealthRecorder receives every outcome observed for a gateway.
type HealthRecorder interface {
	RecordSuccess(ctx context.Context, channel messageDomain.Channel, gateway string, latency time.Duration)
	RecordFailure(
		ctx context.Context,
		channel messageDomain.Channel,
		gateway string,
		reason string,
		latency time.Duration,
	)
	RecordBounce(ctx context.Context, channel messageDomain.Channel, gateway, reason string)
	Touch(ctx context.Context, channel messageDomain.Channel, gateway string)
}

// DeliveryUseCase defines the delivery event operations.
type DeliveryUseCase interface {
	// Ingest applies a normalized provider event. Replays of an already stored
	// (source, external_event_id) return OutcomeDuplicate and change nothing.
	Ingest(ctx context.Context, in deliveryDomain.Inbound) (deliveryDomain.Outcome, error)
	// RecordAttempt records the outcome of one gateway call made by the dispatcher.
	RecordAttempt(ctx context.Context, attempt deliveryDomain.Attempt) error
	// ListEvents returns the events of a message in occurrence order.
	ListEvents(ctx context.Context, messageID uuid.UUID) ([]*deliveryDomain.Event, error)
}
