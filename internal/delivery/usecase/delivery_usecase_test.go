package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/config"
	"github.com/allisson/courier/internal/database"
	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	deliveryRepository "github.com/allisson/courier/internal/delivery/repository"
	healthService "github.com/allisson/courier/internal/health/service"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	messageRepository "github.com/allisson/courier/internal/message/repository"
	"github.com/allisson/courier/internal/notification"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
	suppressionRepository "github.com/allisson/courier/internal/suppression/repository"
	suppressionUsecase "github.com/allisson/courier/internal/suppression/usecase"
)

type recordingPublisher struct {
	mu    sync.Mutex
	items []notification.Notification
}

func (p *recordingPublisher) Publish(_ context.Context, n notification.Notification) {
	p.mu.Lock()
	p.items = append(p.items, n)
	p.mu.Unlock()
}

func (p *recordingPublisher) kinds() []notification.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]notification.Kind, 0, len(p.items))
	for _, n := range p.items {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

type fixture struct {
	uc          *deliveryUseCase
	messages    *messageRepository.MemoryMessageRepository
	events      *deliveryRepository.MemoryEventRepository
	suppression suppressionUsecase.SuppressionUseCase
	health      *healthService.Tracker
	publisher   *recordingPublisher
	msg         *messageDomain.Message
}

func strPtr(s string) *string { return &s }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	policy := config.DefaultPolicy()

	messages := messageRepository.NewMemoryMessageRepository()
	events := deliveryRepository.NewMemoryEventRepository()
	suppressionRepo := suppressionRepository.NewMemorySuppressionRepository()
	suppression := suppressionUsecase.NewSuppressionUseCase(suppressionRepo, suppressionRepo, policy.Suppression, nil)
	health := healthService.NewTracker(policy.Health, nil)
	publisher := &recordingPublisher{}

	uc := NewDeliveryUseCase(
		database.NewPassthroughTxManager(),
		events,
		messages,
		suppression,
		health,
		publisher,
		nil,
	).(*deliveryUseCase)

	now := time.Now().UTC()
	msg := &messageDomain.Message{
		ID:               uuid.Must(uuid.NewV7()),
		Priority:         messageDomain.PriorityP3,
		MessageType:      messageDomain.MessageTypeNewsletter,
		Channel:          messageDomain.ChannelEmail,
		RecipientAddress: "ana@example.com",
		Gateway:          strPtr("postal"),
		ExternalID:       strPtr("postal-123"),
		Status:           messageDomain.StatusSent,
		ScheduledFor:     now,
		SentAt:           &now,
		Attempts:         1,
		MaxAttempts:      3,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, messages.Create(context.Background(), msg))

	return &fixture{
		uc:          uc,
		messages:    messages,
		events:      events,
		suppression: suppression,
		health:      health,
		publisher:   publisher,
		msg:         msg,
	}
}

func TestDeliveryUseCase_Ingest(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_DeliveredIsIdempotent", func(t *testing.T) {
		f := newFixture(t)
		first := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)

		outcome, err := f.uc.Ingest(ctx, deliveryDomain.Inbound{
			Source:          "postal",
			ExternalEventID: strPtr("evt-1"),
			MessageID:       &f.msg.ID,
			Type:            deliveryDomain.EventDelivered,
			OccurredAt:      first,
		})
		require.NoError(t, err)
		assert.Equal(t, deliveryDomain.OutcomeApplied, outcome)

		// replay of the same provider event
		outcome, err = f.uc.Ingest(ctx, deliveryDomain.Inbound{
			Source:          "postal",
			ExternalEventID: strPtr("evt-1"),
			MessageID:       &f.msg.ID,
			Type:            deliveryDomain.EventDelivered,
			OccurredAt:      first.Add(time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, deliveryDomain.OutcomeDuplicate, outcome)

		// a distinct later delivered event does not move delivered_at
		outcome, err = f.uc.Ingest(ctx, deliveryDomain.Inbound{
			Source:          "postal",
			ExternalEventID: strPtr("evt-2"),
			MessageID:       &f.msg.ID,
			Type:            deliveryDomain.EventDelivered,
			OccurredAt:      first.Add(2 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, deliveryDomain.OutcomeApplied, outcome)

		stored, err := f.messages.Get(ctx, f.msg.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.DeliveredAt)
		assert.Equal(t, first, *stored.DeliveredAt)
		assert.Equal(t, messageDomain.StatusSent, stored.Status)

		events, err := f.events.ListByMessage(ctx, f.msg.ID)
		require.NoError(t, err)
		assert.Len(t, events, 2)
		assert.Equal(t, []notification.Kind{notification.KindMessageDelivered}, f.publisher.kinds())
	})

	t.Run("Success_ResolvesByExternalID", func(t *testing.T) {
		f := newFixture(t)

		outcome, err := f.uc.Ingest(ctx, deliveryDomain.Inbound{
			Source:            "postal",
			ExternalMessageID: strPtr("postal-123"),
			Type:              deliveryDomain.EventOpened,
			Payload:           map[string]any{"ip": "10.0.0.1"},
		})
		require.NoError(t, err)
		assert.Equal(t, deliveryDomain.OutcomeApplied, outcome)

		stored, _ := f.messages.Get(ctx, f.msg.ID)
		assert.NotNil(t, stored.OpenedAt)

		rec, ok := f.health.Get(messageDomain.ChannelEmail, "postal")
		require.True(t, ok)
		assert.True(t, rec.Healthy)
	})

	t.Run("Success_HardBounceSuppresses", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.uc.Ingest(ctx, deliveryDomain.Inbound{
			Source:     "ses",
			MessageID:  &f.msg.ID,
			Type:       deliveryDomain.EventBounced,
			BounceType: deliveryDomain.BounceHard,
			Reason:     "550 mailbox unavailable",
		})
		require.NoError(t, err)

		suppressed, reason, err := f.suppression.IsSuppressed(ctx, messageDomain.ChannelEmail, "ana@example.com", nil)
		require.NoError(t, err)
		assert.True(t, suppressed)
		assert.Equal(t, suppressionDomain.ReasonHardBounce, reason)

		stored, _ := f.messages.Get(ctx, f.msg.ID)
		assert.Equal(t, "550 mailbox unavailable", *stored.BounceReason)
		assert.NotNil(t, stored.BouncedAt)

		rec, _ := f.health.Get(messageDomain.ChannelEmail, "postal")
		assert.Equal(t, 1, rec.Samples1h)
		assert.Equal(t, []notification.Kind{notification.KindMessageBounced}, f.publisher.kinds())
	})

	t.Run("Success_SoftBounceThreshold", func(t *testing.T) {
		f := newFixture(t)

		for i := 0; i < 3; i++ {
			suppressed, _, _ := f.suppression.IsSuppressed(ctx, messageDomain.ChannelEmail, "ana@example.com", nil)
			assert.False(t, suppressed)

			_, err := f.uc.Ingest(ctx, deliveryDomain.Inbound{
				Source:     "postal",
				MessageID:  &f.msg.ID,
				Type:       deliveryDomain.EventBounced,
				BounceType: deliveryDomain.BounceSoft,
			})
			require.NoError(t, err)
		}

		suppressed, reason, _ := f.suppression.IsSuppressed(ctx, messageDomain.ChannelEmail, "ana@example.com", nil)
		assert.True(t, suppressed)
		assert.Equal(t, suppressionDomain.ReasonSoftBounce, reason)

		stored, _ := f.messages.Get(ctx, f.msg.ID)
		assert.Equal(t, "soft_bounce", *stored.BounceReason)
	})

	t.Run("Success_Complaint", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.uc.Ingest(ctx, deliveryDomain.Inbound{
			Source:    "ses",
			MessageID: &f.msg.ID,
			Type:      deliveryDomain.EventComplained,
		})
		require.NoError(t, err)

		suppressed, reason, _ := f.suppression.IsSuppressed(ctx, messageDomain.ChannelEmail, "ana@example.com", nil)
		assert.True(t, suppressed)
		assert.Equal(t, suppressionDomain.ReasonComplaint, reason)
	})

	t.Run("Error_Validation", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.uc.Ingest(ctx, deliveryDomain.Inbound{MessageID: &f.msg.ID, Type: deliveryDomain.EventOpened})
		assert.ErrorIs(t, err, deliveryDomain.ErrMissingSource)

		_, err = f.uc.Ingest(ctx, deliveryDomain.Inbound{Source: "postal", MessageID: &f.msg.ID, Type: "read"})
		assert.ErrorIs(t, err, deliveryDomain.ErrInvalidEventType)

		_, err = f.uc.Ingest(ctx, deliveryDomain.Inbound{Source: "postal", Type: deliveryDomain.EventOpened})
		assert.ErrorIs(t, err, deliveryDomain.ErrMissingMessageReference)

		missing := uuid.New()
		_, err = f.uc.Ingest(ctx, deliveryDomain.Inbound{Source: "postal", MessageID: &missing, Type: deliveryDomain.EventOpened})
		assert.ErrorIs(t, err, messageDomain.ErrMessageNotFound)
	})

	t.Run("Success_RetryAfterFailedApply", func(t *testing.T) {
		f := newFixture(t)
		f.uc.messages = &flakyMessages{MessageRepository: f.messages, failures: 1}
		in := deliveryDomain.Inbound{
			Source:          "postal",
			ExternalEventID: strPtr("evt-9"),
			MessageID:       &f.msg.ID,
			Type:            deliveryDomain.EventDelivered,
		}

		_, err := f.uc.Ingest(ctx, in)
		require.ErrorIs(t, err, assert.AnError)

		events, err := f.events.ListByMessage(ctx, f.msg.ID)
		require.NoError(t, err)
		assert.Empty(t, events)

		outcome, err := f.uc.Ingest(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, deliveryDomain.OutcomeApplied, outcome)

		stored, _ := f.messages.Get(ctx, f.msg.ID)
		assert.NotNil(t, stored.DeliveredAt)
		assert.Equal(t, []notification.Kind{notification.KindMessageDelivered}, f.publisher.kinds())
	})
}

// flakyMessages fails the first failures delivered markers.
type flakyMessages struct {
	MessageRepository
	failures int
}

func (m *flakyMessages) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if m.failures > 0 {
		m.failures--
		return false, assert.AnError
	}
	return m.MessageRepository.MarkDelivered(ctx, id, at)
}

func TestDeliveryUseCase_RecordAttempt(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_SentEvent", func(t *testing.T) {
		f := newFixture(t)

		err := f.uc.RecordAttempt(ctx, deliveryDomain.Attempt{
			Message:    f.msg,
			Gateway:    "postal",
			IPPool:     "marketing",
			ExternalID: "postal-123",
			Success:    true,
			Latency:    120 * time.Millisecond,
		})
		require.NoError(t, err)

		events, err := f.uc.ListEvents(ctx, f.msg.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, deliveryDomain.EventSent, events[0].Type)
		assert.Equal(t, SourceDispatcher, events[0].Source)
		assert.Equal(t, "marketing", events[0].Payload["ip_pool"])

		rec, _ := f.health.Get(messageDomain.ChannelEmail, "postal")
		assert.Equal(t, 1, rec.Samples1h)
		assert.Equal(t, int64(120), rec.AvgLatencyMs)
	})

	t.Run("Success_FailureFeedsHealthOnly", func(t *testing.T) {
		f := newFixture(t)

		for i := 0; i < config.DefaultPolicy().Health.FailureThreshold; i++ {
			require.NoError(t, f.uc.RecordAttempt(ctx, deliveryDomain.Attempt{
				Message: f.msg,
				Gateway: "postal",
				Reason:  "gateway_timeout",
			}))
		}

		assert.False(t, f.health.IsHealthy(messageDomain.ChannelEmail, "postal"))
		events, _ := f.uc.ListEvents(ctx, f.msg.ID)
		assert.Empty(t, events)
	})

	t.Run("Error_ListEventsUnknownMessage", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.uc.ListEvents(ctx, uuid.New())
		assert.True(t, errors.Is(err, messageDomain.ErrMessageNotFound))
	})
}
