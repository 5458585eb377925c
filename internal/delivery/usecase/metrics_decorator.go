package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	"github.com/allisson/courier/internal/metrics"
)

// deliveryUseCaseWithMetrics decorates DeliveryUseCase with metrics instrumentation.
type deliveryUseCaseWithMetrics struct {
	next    DeliveryUseCase
	metrics metrics.BusinessMetrics
}

// NewDeliveryUseCaseWithMetrics wraps a DeliveryUseCase with metrics recording.
func NewDeliveryUseCaseWithMetrics(useCase DeliveryUseCase, m metrics.BusinessMetrics) DeliveryUseCase {
	return &deliveryUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (d *deliveryUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	metrics.Observe(ctx, d.metrics, "delivery", operation, start, err)
}

// Ingest records metrics for provider event ingestion.
func (d *deliveryUseCaseWithMetrics) Ingest(
	ctx context.Context,
	in deliveryDomain.Inbound,
) (deliveryDomain.Outcome, error) {
	start := time.Now()
	outcome, err := d.next.Ingest(ctx, in)
	d.record(ctx, "event_ingest", start, err)
	return outcome, err
}

// RecordAttempt records metrics for attempt recording.
func (d *deliveryUseCaseWithMetrics) RecordAttempt(ctx context.Context, attempt deliveryDomain.Attempt) error {
	start := time.Now()
	err := d.next.RecordAttempt(ctx, attempt)
	d.record(ctx, "attempt_record", start, err)
	return err
}

// ListEvents records metrics for event listing.
func (d *deliveryUseCaseWithMetrics) ListEvents(
	ctx context.Context,
	messageID uuid.UUID,
) ([]*deliveryDomain.Event, error) {
	start := time.Now()
	events, err := d.next.ListEvents(ctx, messageID)
	d.record(ctx, "event_list", start, err)
	return events, err
}
