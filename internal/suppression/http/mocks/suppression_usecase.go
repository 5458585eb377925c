// Package mocks provides mock implementations for testing HTTP handlers.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	messageDomain "github.com/allisson/courier/internal/message/domain"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
	"github.com/allisson/courier/internal/suppression/usecase"
)

// MockSuppressionUseCase is a mock implementation of SuppressionUseCase for testing.
type MockSuppressionUseCase struct {
	mock.Mock
}

// IsSuppressed mocks the IsSuppressed method of SuppressionUseCase.
func (m *MockSuppressionUseCase) IsSuppressed(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
	communityID *int64,
) (bool, suppressionDomain.Reason, error) {
	args := m.Called(ctx, channel, address, communityID)
	return args.Bool(0), args.Get(1).(suppressionDomain.Reason), args.Error(2)
}

// FilterSuppressed mocks the FilterSuppressed method of SuppressionUseCase.
func (m *MockSuppressionUseCase) FilterSuppressed(
	ctx context.Context,
	channel messageDomain.Channel,
	addresses []string,
	communityID *int64,
) (map[string]suppressionDomain.Reason, error) {
	args := m.Called(ctx, channel, addresses, communityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]suppressionDomain.Reason), args.Error(1)
}

// Suppress mocks the Suppress method of SuppressionUseCase.
func (m *MockSuppressionUseCase) Suppress(
	ctx context.Context,
	input usecase.SuppressInput,
) (*suppressionDomain.Entry, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*suppressionDomain.Entry), args.Error(1)
}

// Unsuppress mocks the Unsuppress method of SuppressionUseCase.
func (m *MockSuppressionUseCase) Unsuppress(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
	communityID *int64,
) error {
	args := m.Called(ctx, channel, address, communityID)
	return args.Error(0)
}

// List mocks the List method of SuppressionUseCase.
func (m *MockSuppressionUseCase) List(ctx context.Context, offset, limit int) ([]*suppressionDomain.Entry, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*suppressionDomain.Entry), args.Error(1)
}

// RecordHardBounce mocks the RecordHardBounce method of SuppressionUseCase.
func (m *MockSuppressionUseCase) RecordHardBounce(
	ctx context.Context,
	channel messageDomain.Channel,
	address, source string,
) error {
	args := m.Called(ctx, channel, address, source)
	return args.Error(0)
}

// RecordSoftBounce mocks the RecordSoftBounce method of SuppressionUseCase.
func (m *MockSuppressionUseCase) RecordSoftBounce(
	ctx context.Context,
	channel messageDomain.Channel,
	address, source string,
) (bool, error) {
	args := m.Called(ctx, channel, address, source)
	return args.Bool(0), args.Error(1)
}

// RecordComplaint mocks the RecordComplaint method of SuppressionUseCase.
func (m *MockSuppressionUseCase) RecordComplaint(
	ctx context.Context,
	channel messageDomain.Channel,
	address, source string,
) error {
	args := m.Called(ctx, channel, address, source)
	return args.Error(0)
}

// PurgeExpired mocks the PurgeExpired method of SuppressionUseCase.
func (m *MockSuppressionUseCase) PurgeExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
