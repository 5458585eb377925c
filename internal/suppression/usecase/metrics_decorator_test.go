package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	messageDomain "github.com/allisson/courier/internal/message/domain"
	"github.com/allisson/courier/internal/metrics"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
	"github.com/allisson/courier/internal/suppression/http/mocks"
	"github.com/allisson/courier/internal/suppression/usecase"
)

type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

var _ metrics.BusinessMetrics = (*mockBusinessMetrics)(nil)

func expectMetrics(m *mockBusinessMetrics, ctx context.Context, operation, status string) {
	m.On("RecordOperation", ctx, "suppressions", operation, status).Return().Once()
	m.On("RecordDuration", ctx, "suppressions", operation, mock.AnythingOfType("time.Duration"), status).
		Return().
		Once()
}

func TestMetricsDecorator_IsSuppressed(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RecordsSuccessMetrics", func(t *testing.T) {
		next := &mocks.MockSuppressionUseCase{}
		m := &mockBusinessMetrics{}

		next.On("IsSuppressed", ctx, messageDomain.ChannelEmail, "a@example.com", (*int64)(nil)).
			Return(true, suppressionDomain.ReasonComplaint, nil).
			Once()
		expectMetrics(m, ctx, "suppression_check", "success")

		suppressed, reason, err := usecase.NewSuppressionUseCaseWithMetrics(next, m).
			IsSuppressed(ctx, messageDomain.ChannelEmail, "a@example.com", nil)

		assert.NoError(t, err)
		assert.True(t, suppressed)
		assert.Equal(t, suppressionDomain.ReasonComplaint, reason)
		next.AssertExpectations(t)
		m.AssertExpectations(t)
	})

	t.Run("Error_RecordsErrorMetrics", func(t *testing.T) {
		next := &mocks.MockSuppressionUseCase{}
		m := &mockBusinessMetrics{}

		next.On("IsSuppressed", ctx, messageDomain.ChannelSMS, "+1555", (*int64)(nil)).
			Return(false, suppressionDomain.Reason(""), errors.New("db down")).
			Once()
		expectMetrics(m, ctx, "suppression_check", "error")

		_, _, err := usecase.NewSuppressionUseCaseWithMetrics(next, m).
			IsSuppressed(ctx, messageDomain.ChannelSMS, "+1555", nil)

		assert.Error(t, err)
		m.AssertExpectations(t)
	})
}

func TestMetricsDecorator_RecordSoftBounce(t *testing.T) {
	ctx := context.Background()
	next := &mocks.MockSuppressionUseCase{}
	m := &mockBusinessMetrics{}

	next.On("RecordSoftBounce", ctx, messageDomain.ChannelEmail, "full@example.com", "postal").
		Return(true, nil).
		Once()
	expectMetrics(m, ctx, "suppression_soft_bounce", "success")

	suppressed, err := usecase.NewSuppressionUseCaseWithMetrics(next, m).
		RecordSoftBounce(ctx, messageDomain.ChannelEmail, "full@example.com", "postal")

	assert.NoError(t, err)
	assert.True(t, suppressed)
	m.AssertExpectations(t)
}

func TestMetricsDecorator_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	next := &mocks.MockSuppressionUseCase{}
	m := &mockBusinessMetrics{}

	next.On("PurgeExpired", ctx).Return(int64(3), nil).Once()
	expectMetrics(m, ctx, "suppression_purge", "success")

	n, err := usecase.NewSuppressionUseCaseWithMetrics(next, m).PurgeExpired(ctx)

	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	m.AssertExpectations(t)
}
