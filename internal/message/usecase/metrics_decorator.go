package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	"github.com/allisson/courier/internal/metrics"
)

// messageUseCaseWithMetrics decorates MessageUseCase with metrics instrumentation.
type messageUseCaseWithMetrics struct {
	next    MessageUseCase
	metrics metrics.BusinessMetrics
}

// NewMessageUseCaseWithMetrics wraps a MessageUseCase with metrics recording.
func NewMessageUseCaseWithMetrics(useCase MessageUseCase, m metrics.BusinessMetrics) MessageUseCase {
	return &messageUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (m *messageUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	metrics.Observe(ctx, m.metrics, "messages", operation, start, err)
}

// Enqueue records metrics for single enqueue operations.
func (m *messageUseCaseWithMetrics) Enqueue(
	ctx context.Context,
	input messageDomain.EnqueueInput,
) (*messageDomain.EnqueueResult, error) {
	start := time.Now()
	result, err := m.next.Enqueue(ctx, input)
	m.record(ctx, "message_enqueue", start, err)
	return result, err
}

// EnqueueBulk records metrics for bulk enqueue operations.
func (m *messageUseCaseWithMetrics) EnqueueBulk(
	ctx context.Context,
	input messageDomain.BulkEnqueueInput,
) (*messageDomain.BulkEnqueueResult, error) {
	start := time.Now()
	result, err := m.next.EnqueueBulk(ctx, input)
	m.record(ctx, "message_enqueue_bulk", start, err)
	return result, err
}

// GetStatus records metrics for status lookups.
func (m *messageUseCaseWithMetrics) GetStatus(ctx context.Context, id uuid.UUID) (*messageDomain.StatusView, error) {
	start := time.Now()
	view, err := m.next.GetStatus(ctx, id)
	m.record(ctx, "message_get_status", start, err)
	return view, err
}

// Cancel records metrics for cancellations.
func (m *messageUseCaseWithMetrics) Cancel(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := m.next.Cancel(ctx, id)
	m.record(ctx, "message_cancel", start, err)
	return err
}

// ListEvents records metrics for delivery event listing.
func (m *messageUseCaseWithMetrics) ListEvents(
	ctx context.Context,
	id uuid.UUID,
) ([]*deliveryDomain.Event, error) {
	start := time.Now()
	events, err := m.next.ListEvents(ctx, id)
	m.record(ctx, "message_list_events", start, err)
	return events, err
}

// QueueStats records metrics for queue statistics reads.
func (m *messageUseCaseWithMetrics) QueueStats(ctx context.Context) (messageDomain.QueueStats, error) {
	start := time.Now()
	stats, err := m.next.QueueStats(ctx)
	m.record(ctx, "message_queue_stats", start, err)
	return stats, err
}
