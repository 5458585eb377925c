package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/config"
	"github.com/allisson/courier/internal/database"
	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	"github.com/allisson/courier/internal/notification"
	"github.com/allisson/courier/internal/validation"
)

// bulkChunkSize bounds the rows of a single multi-row insert.
const bulkChunkSize = 1000

type messageUseCase struct {
	txManager   database.TxManager
	repo        MessageRepository
	suppression SuppressionChecker
	events      EventLister
	policy      *config.Policy
	publisher   notification.Publisher
	waker       Waker
	logger      *slog.Logger
	now         func() time.Time
}

// NewMessageUseCase creates a MessageUseCase. waker and publisher may be nil.
func NewMessageUseCase(
	txManager database.TxManager,
	repo MessageRepository,
	suppression SuppressionChecker,
	events EventLister,
	policy *config.Policy,
	publisher notification.Publisher,
	waker Waker,
	logger *slog.Logger,
) MessageUseCase {
	if publisher == nil {
		publisher = notification.Discard{}
	}
	return &messageUseCase{
		txManager:   txManager,
		repo:        repo,
		suppression: suppression,
		events:      events,
		policy:      policy,
		publisher:   publisher,
		waker:       waker,
		logger:      logger,
		now:         time.Now,
	}
}

func validateRouting(
	priority messageDomain.Priority,
	messageType messageDomain.MessageType,
	channel messageDomain.Channel,
) error {
	if !priority.Valid() {
		return messageDomain.ErrInvalidPriority
	}
	if !messageType.Valid() {
		return messageDomain.ErrInvalidMessageType
	}
	if !channel.Valid() {
		return messageDomain.ErrInvalidChannel
	}
	return nil
}

func hasContent(body, template *string) bool {
	return (body != nil && *body != "") || (template != nil && *template != "")
}

func (m *messageUseCase) newMessage(
	priority messageDomain.Priority,
	channel messageDomain.Channel,
	scheduledFor *time.Time,
	now time.Time,
) (*messageDomain.Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	due := now
	if scheduledFor != nil && !scheduledFor.IsZero() {
		due = scheduledFor.UTC()
	}
	return &messageDomain.Message{
		ID:           id,
		Priority:     priority,
		Channel:      channel,
		Status:       messageDomain.StatusPending,
		ScheduledFor: due,
		MaxAttempts:  m.policy.Tier(priority).RetryAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (m *messageUseCase) wake(priority messageDomain.Priority) {
	if m.waker != nil && priority == messageDomain.PriorityP0 {
		m.waker.Wake()
	}
}

// Enqueue validates and stores one message.
func (m *messageUseCase) Enqueue(
	ctx context.Context,
	input messageDomain.EnqueueInput,
) (*messageDomain.EnqueueResult, error) {
	if err := validateRouting(input.Priority, input.MessageType, input.Channel); err != nil {
		return nil, err
	}
	if !hasContent(input.Body, input.Template) {
		return nil, messageDomain.ErrMissingContent
	}

	address := strings.TrimSpace(input.RecipientAddress)
	result := &messageDomain.EnqueueResult{Address: address}

	if err := validation.ValidateAddress(input.Channel, address); err != nil {
		result.Outcome = messageDomain.OutcomeInvalid
		result.Reason = err.Error()
		return result, nil
	}

	suppressed, reason, err := m.suppression.IsSuppressed(ctx, input.Channel, address, input.CommunityID)
	if err != nil {
		return nil, err
	}
	if suppressed {
		result.Outcome = messageDomain.OutcomeSuppressed
		result.Reason = string(reason)
		return result, nil
	}

	msg, err := m.newMessage(input.Priority, input.Channel, input.ScheduledFor, m.now().UTC())
	if err != nil {
		return nil, err
	}
	msg.MessageType = input.MessageType
	msg.CommunityID = input.CommunityID
	msg.RecipientAddress = address
	msg.RecipientID = input.RecipientID
	msg.RecipientType = input.RecipientType
	msg.Subject = input.Subject
	msg.Body = input.Body
	msg.Template = input.Template
	msg.Variables = input.Variables
	msg.SourceType = input.SourceType
	msg.SourceID = input.SourceID
	msg.IPPool = input.IPPool

	if err := m.repo.Create(ctx, msg); err != nil {
		return nil, err
	}

	if m.logger != nil {
		m.logger.Debug("message enqueued",
			slog.String("message_id", msg.ID.String()),
			slog.String("priority", string(msg.Priority)),
			slog.String("channel", string(msg.Channel)),
		)
	}
	m.wake(msg.Priority)

	result.ID = &msg.ID
	result.Outcome = messageDomain.OutcomeAccepted
	return result, nil
}

// EnqueueBulk validates every recipient, drops suppressed and invalid addresses and
// stores the rest in chunks within one transaction.
func (m *messageUseCase) EnqueueBulk(
	ctx context.Context,
	input messageDomain.BulkEnqueueInput,
) (*messageDomain.BulkEnqueueResult, error) {
	if err := validateRouting(input.Priority, input.MessageType, input.Channel); err != nil {
		return nil, err
	}
	if len(input.Recipients) == 0 {
		return nil, messageDomain.ErrEmptyBulk
	}
	if !hasContent(input.Body, input.Template) {
		return nil, messageDomain.ErrMissingContent
	}

	result := &messageDomain.BulkEnqueueResult{
		Results: make([]messageDomain.EnqueueResult, len(input.Recipients)),
	}

	valid := make([]string, 0, len(input.Recipients))
	for i, r := range input.Recipients {
		address := strings.TrimSpace(r.Address)
		result.Results[i].Address = address
		if err := validation.ValidateAddress(input.Channel, address); err != nil {
			result.Results[i].Outcome = messageDomain.OutcomeInvalid
			result.Results[i].Reason = err.Error()
			result.Invalid++
			continue
		}
		valid = append(valid, address)
	}

	suppressed, err := m.suppression.FilterSuppressed(ctx, input.Channel, valid, input.CommunityID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	msgs := make([]*messageDomain.Message, 0, len(valid))
	for i, r := range input.Recipients {
		res := &result.Results[i]
		if res.Outcome == messageDomain.OutcomeInvalid {
			continue
		}
		if reason, ok := suppressed[res.Address]; ok {
			res.Outcome = messageDomain.OutcomeSuppressed
			res.Reason = string(reason)
			result.Suppressed++
			continue
		}

		msg, err := m.newMessage(input.Priority, input.Channel, input.ScheduledFor, now)
		if err != nil {
			return nil, err
		}
		msg.MessageType = input.MessageType
		msg.CommunityID = input.CommunityID
		msg.RecipientAddress = res.Address
		msg.RecipientID = r.ID
		msg.RecipientType = r.Type
		msg.Subject = input.Subject
		msg.Body = input.Body
		msg.Template = input.Template
		msg.Variables = messageDomain.MergeVariables(input.SharedVariables, r.Variables)
		msg.SourceType = input.SourceType
		msg.SourceID = input.SourceID
		msg.IPPool = input.IPPool
		msgs = append(msgs, msg)

		id := msg.ID
		res.ID = &id
		res.Outcome = messageDomain.OutcomeAccepted
		result.Queued++
	}

	if len(msgs) > 0 {
		err := m.txManager.WithTx(ctx, func(ctx context.Context) error {
			for start := 0; start < len(msgs); start += bulkChunkSize {
				end := min(start+bulkChunkSize, len(msgs))
				if err := m.repo.CreateBatch(ctx, msgs[start:end]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if m.logger != nil {
		m.logger.Info("bulk enqueue processed",
			slog.String("priority", string(input.Priority)),
			slog.String("channel", string(input.Channel)),
			slog.Int("queued", result.Queued),
			slog.Int("suppressed", result.Suppressed),
			slog.Int("invalid", result.Invalid),
		)
	}
	if result.Queued > 0 {
		m.wake(input.Priority)
	}
	return result, nil
}

// GetStatus returns the status read model of a message.
func (m *messageUseCase) GetStatus(ctx context.Context, id uuid.UUID) (*messageDomain.StatusView, error) {
	msg, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := msg.View()
	return &view, nil
}

// Cancel cancels a message that no worker has claimed yet.
func (m *messageUseCase) Cancel(ctx context.Context, id uuid.UUID) error {
	now := m.now().UTC()
	if err := m.repo.Cancel(ctx, id, now); err != nil {
		return err
	}

	msg, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	m.publisher.Publish(ctx, notification.ForMessage(
		notification.KindMessageCancelled, msg, messageDomain.ReasonCancelled, now,
	))
	return nil
}

// ListEvents returns the delivery events of a message.
func (m *messageUseCase) ListEvents(ctx context.Context, id uuid.UUID) ([]*deliveryDomain.Event, error) {
	return m.events.ListEvents(ctx, id)
}

// QueueStats returns the queue row counts grouped by priority and status.
func (m *messageUseCase) QueueStats(ctx context.Context) (messageDomain.QueueStats, error) {
	counts, err := m.repo.CountByPriorityStatus(ctx)
	if err != nil {
		return nil, err
	}
	return messageDomain.NewQueueStats(counts), nil
}
