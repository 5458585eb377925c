package usecase

import (
	"context"
	"time"

	messageDomain "github.com/allisson/courier/internal/message/domain"
	"github.com/allisson/courier/internal/metrics"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
)

// suppressionUseCaseWithMetrics decorates SuppressionUseCase with metrics instrumentation.
type suppressionUseCaseWithMetrics struct {
	next    SuppressionUseCase
	metrics metrics.BusinessMetrics
}

// NewSuppressionUseCaseWithMetrics wraps a SuppressionUseCase with metrics recording.
func NewSuppressionUseCaseWithMetrics(useCase SuppressionUseCase, m metrics.BusinessMetrics) SuppressionUseCase {
	return &suppressionUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (m *suppressionUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	metrics.Observe(ctx, m.metrics, "suppressions", operation, start, err)
}

// IsSuppressed records metrics for single-address checks.
func (m *suppressionUseCaseWithMetrics) IsSuppressed(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
	communityID *int64,
) (bool, suppressionDomain.Reason, error) {
	start := time.Now()
	suppressed, reason, err := m.next.IsSuppressed(ctx, channel, address, communityID)
	m.record(ctx, "suppression_check", start, err)
	return suppressed, reason, err
}

// FilterSuppressed records metrics for batch checks.
func (m *suppressionUseCaseWithMetrics) FilterSuppressed(
	ctx context.Context,
	channel messageDomain.Channel,
	addresses []string,
	communityID *int64,
) (map[string]suppressionDomain.Reason, error) {
	start := time.Now()
	found, err := m.next.FilterSuppressed(ctx, channel, addresses, communityID)
	m.record(ctx, "suppression_filter", start, err)
	return found, err
}

// Suppress records metrics for suppress operations.
func (m *suppressionUseCaseWithMetrics) Suppress(
	ctx context.Context,
	input SuppressInput,
) (*suppressionDomain.Entry, error) {
	start := time.Now()
	entry, err := m.next.Suppress(ctx, input)
	m.record(ctx, "suppression_add", start, err)
	return entry, err
}

// Unsuppress records metrics for unsuppress operations.
func (m *suppressionUseCaseWithMetrics) Unsuppress(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
	communityID *int64,
) error {
	start := time.Now()
	err := m.next.Unsuppress(ctx, channel, address, communityID)
	m.record(ctx, "suppression_remove", start, err)
	return err
}

// List records metrics for list operations.
func (m *suppressionUseCaseWithMetrics) List(
	ctx context.Context,
	offset, limit int,
) ([]*suppressionDomain.Entry, error) {
	start := time.Now()
	entries, err := m.next.List(ctx, offset, limit)
	m.record(ctx, "suppression_list", start, err)
	return entries, err
}

// RecordHardBounce records metrics for hard bounce handling.
func (m *suppressionUseCaseWithMetrics) RecordHardBounce(
	ctx context.Context,
	channel messageDomain.Channel,
	address, source string,
) error {
	start := time.Now()
	err := m.next.RecordHardBounce(ctx, channel, address, source)
	m.record(ctx, "suppression_hard_bounce", start, err)
	return err
}

// RecordSoftBounce records metrics for soft bounce handling.
func (m *suppressionUseCaseWithMetrics) RecordSoftBounce(
	ctx context.Context,
	channel messageDomain.Channel,
	address, source string,
) (bool, error) {
	start := time.Now()
	suppressed, err := m.next.RecordSoftBounce(ctx, channel, address, source)
	m.record(ctx, "suppression_soft_bounce", start, err)
	return suppressed, err
}

// RecordComplaint records metrics for complaint handling.
func (m *suppressionUseCaseWithMetrics) RecordComplaint(
	ctx context.Context,
	channel messageDomain.Channel,
	address, source string,
) error {
	start := time.Now()
	err := m.next.RecordComplaint(ctx, channel, address, source)
	m.record(ctx, "suppression_complaint", start, err)
	return err
}

// PurgeExpired records metrics for expiry purges.
func (m *suppressionUseCaseWithMetrics) PurgeExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := m.next.PurgeExpired(ctx)
	m.record(ctx, "suppression_purge", start, err)
	return n, err
}
