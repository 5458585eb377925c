// Package mocks provides mock implementations for testing HTTP handlers.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// MockMessageUseCase is a mock implementation of MessageUseCase for testing.
type MockMessageUseCase struct {
	mock.Mock
}

// Enqueue mocks the Enqueue method of MessageUseCase.
func (m *MockMessageUseCase) Enqueue(
	ctx context.Context,
	input messageDomain.EnqueueInput,
) (*messageDomain.EnqueueResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messageDomain.EnqueueResult), args.Error(1)
}

// EnqueueBulk mocks the EnqueueBulk method of MessageUseCase.
func (m *MockMessageUseCase) EnqueueBulk(
	ctx context.Context,
	input messageDomain.BulkEnqueueInput,
) (*messageDomain.BulkEnqueueResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messageDomain.BulkEnqueueResult), args.Error(1)
}

// GetStatus mocks the GetStatus method of MessageUseCase.
func (m *MockMessageUseCase) GetStatus(ctx context.Context, id uuid.UUID) (*messageDomain.StatusView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messageDomain.StatusView), args.Error(1)
}

// Cancel mocks the Cancel method of MessageUseCase.
func (m *MockMessageUseCase) Cancel(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// ListEvents mocks the ListEvents method of MessageUseCase.
func (m *MockMessageUseCase) ListEvents(ctx context.Context, id uuid.UUID) ([]*deliveryDomain.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*deliveryDomain.Event), args.Error(1)
}

// QueueStats mocks the QueueStats method of MessageUseCase.
func (m *MockMessageUseCase) QueueStats(ctx context.Context) (messageDomain.QueueStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(messageDomain.QueueStats), args.Error(1)
}
