package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	"github.com/allisson/courier/internal/notification"
)

// SourceDispatcher is the event source of attempts recorded by the dispatcher.
const SourceDispatcher = "dispatcher"

type deliveryUseCase struct {
	txManager database.TxManager
	events    EventRepository
	messages  MessageRepository
	suppress  Suppressor
	health    HealthRecorder
	publisher notification.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewDeliveryUseCase creates a DeliveryUseCase.
func NewDeliveryUseCase(
	txManager database.TxManager,
	events EventRepository,
	messages MessageRepository,
	suppress Suppressor,
	health HealthRecorder,
	publisher notification.Publisher,
	logger *slog.Logger,
) DeliveryUseCase {
	if publisher == nil {
		publisher = notification.Discard{}
	}
	return &deliveryUseCase{
		txManager: txManager,
		events:    events,
		messages:  messages,
		suppress:  suppress,
		health:    health,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (d *deliveryUseCase) resolve(ctx context.Context, in deliveryDomain.Inbound) (*messageDomain.Message, error) {
	if in.MessageID != nil {
		return d.messages.Get(ctx, *in.MessageID)
	}
	return d.messages.GetByExternalID(ctx, *in.ExternalMessageID)
}

func validateInbound(in deliveryDomain.Inbound) error {
	if in.Source == "" {
		return deliveryDomain.ErrMissingSource
	}
	if !in.Type.Valid() {
		return deliveryDomain.ErrInvalidEventType
	}
	if in.MessageID == nil && (in.ExternalMessageID == nil || *in.ExternalMessageID == "") {
		return deliveryDomain.ErrMissingMessageReference
	}
	return nil
}

var eventKinds = map[deliveryDomain.EventType]notification.Kind{
	deliveryDomain.EventDelivered:  notification.KindMessageDelivered,
	deliveryDomain.EventOpened:     notification.KindMessageOpened,
	deliveryDomain.EventClicked:    notification.KindMessageClicked,
	deliveryDomain.EventBounced:    notification.KindMessageBounced,
	deliveryDomain.EventComplained: notification.KindMessageComplained,
}

// Ingest stores the event and applies its effects in one transaction, so a replay
// that loses the dedup race leaves no partial effects behind.
func (d *deliveryUseCase) Ingest(ctx context.Context, in deliveryDomain.Inbound) (deliveryDomain.Outcome, error) {
	if err := validateInbound(in); err != nil {
		return "", err
	}

	msg, err := d.resolve(ctx, in)
	if err != nil {
		return "", err
	}

	now := d.now().UTC()
	occurredAt := in.OccurredAt.UTC()
	if in.OccurredAt.IsZero() {
		occurredAt = now
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	event := &deliveryDomain.Event{
		ID:              id,
		MessageID:       msg.ID,
		Type:            in.Type,
		Payload:         in.Payload,
		Source:          in.Source,
		ExternalEventID: in.ExternalEventID,
		OccurredAt:      occurredAt,
		CreatedAt:       now,
	}

	// first reports whether this event set a first-write-wins marker.
	first := true
	err = d.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := d.events.Append(ctx, event); err != nil {
			return err
		}
		var applyErr error
		first, applyErr = d.apply(ctx, msg, in, occurredAt)
		return applyErr
	})
	if errors.Is(err, deliveryDomain.ErrDuplicateEvent) {
		if d.logger != nil {
			d.logger.Debug("duplicate delivery event ignored",
				slog.String("source", in.Source),
				slog.String("message_id", msg.ID.String()),
				slog.String("event_type", string(in.Type)),
			)
		}
		return deliveryDomain.OutcomeDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	d.feedHealth(ctx, msg, in)

	if kind, ok := eventKinds[in.Type]; ok && first {
		d.publisher.Publish(ctx, notification.ForMessage(kind, msg, in.Reason, occurredAt))
	}
	return deliveryDomain.OutcomeApplied, nil
}

func (d *deliveryUseCase) apply(
	ctx context.Context,
	msg *messageDomain.Message,
	in deliveryDomain.Inbound,
	at time.Time,
) (bool, error) {
	switch in.Type {
	case deliveryDomain.EventDelivered:
		return d.messages.MarkDelivered(ctx, msg.ID, at)
	case deliveryDomain.EventOpened:
		return d.messages.MarkOpened(ctx, msg.ID, at)
	case deliveryDomain.EventClicked:
		return d.messages.MarkClicked(ctx, msg.ID, at)
	case deliveryDomain.EventBounced:
		reason := in.Reason
		if reason == "" {
			reason = string(in.BounceType) + "_bounce"
		}
		if err := d.messages.MarkBounced(ctx, msg.ID, reason, at); err != nil {
			return false, err
		}
		if in.IsHardBounce() {
			return true, d.suppress.RecordHardBounce(ctx, msg.Channel, msg.RecipientAddress, in.Source)
		}
		suppressed, err := d.suppress.RecordSoftBounce(ctx, msg.Channel, msg.RecipientAddress, in.Source)
		if err != nil {
			return false, err
		}
		if suppressed && d.logger != nil {
			d.logger.Info("address suppressed after repeated soft bounces",
				slog.String("channel", string(msg.Channel)),
				slog.String("message_id", msg.ID.String()),
			)
		}
		return true, nil
	case deliveryDomain.EventComplained:
		return true, d.suppress.RecordComplaint(ctx, msg.Channel, msg.RecipientAddress, in.Source)
	default:
		return true, nil
	}
}

func (d *deliveryUseCase) feedHealth(ctx context.Context, msg *messageDomain.Message, in deliveryDomain.Inbound) {
	if msg.Gateway == nil || d.health == nil {
		return
	}
	if in.Type == deliveryDomain.EventBounced {
		d.health.RecordBounce(ctx, msg.Channel, *msg.Gateway, in.Reason)
		return
	}
	d.health.Touch(ctx, msg.Channel, *msg.Gateway)
}

// RecordAttempt stores a sent event for a successful attempt and feeds the outcome
// to channel health.
func (d *deliveryUseCase) RecordAttempt(ctx context.Context, attempt deliveryDomain.Attempt) error {
	msg := attempt.Message
	at := attempt.At
	if at.IsZero() {
		at = d.now().UTC()
	}

	if !attempt.Success {
		if d.health != nil {
			d.health.RecordFailure(ctx, msg.Channel, attempt.Gateway, attempt.Reason, attempt.Latency)
		}
		return nil
	}

	if d.health != nil {
		d.health.RecordSuccess(ctx, msg.Channel, attempt.Gateway, attempt.Latency)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	payload := map[string]any{
		"gateway":    attempt.Gateway,
		"latency_ms": attempt.Latency.Milliseconds(),
	}
	if attempt.IPPool != "" {
		payload["ip_pool"] = attempt.IPPool
	}
	if attempt.ExternalID != "" {
		payload["external_id"] = attempt.ExternalID
	}
	return d.events.Append(ctx, &deliveryDomain.Event{
		ID:         id,
		MessageID:  msg.ID,
		Type:       deliveryDomain.EventSent,
		Payload:    payload,
		Source:     SourceDispatcher,
		OccurredAt: at,
		CreatedAt:  d.now().UTC(),
	})
}

// ListEvents returns the events of a message, or ErrMessageNotFound.
func (d *deliveryUseCase) ListEvents(ctx context.Context, messageID uuid.UUID) ([]*deliveryDomain.Event, error) {
	if _, err := d.messages.Get(ctx, messageID); err != nil {
		return nil, err
	}
	return d.events.ListByMessage(ctx, messageID)
}
