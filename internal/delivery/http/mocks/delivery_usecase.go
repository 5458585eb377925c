// Package mocks provides mock implementations for testing HTTP handlers.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
)

// MockDeliveryUseCase is a mock implementation of DeliveryUseCase for testing.
type MockDeliveryUseCase struct {
	mock.Mock
}

// Ingest mocks the Ingest method of DeliveryUseCase.
func (m *MockDeliveryUseCase) Ingest(
	ctx context.Context,
	in deliveryDomain.Inbound,
) (deliveryDomain.Outcome, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(deliveryDomain.Outcome), args.Error(1)
}

// RecordAttempt mocks the RecordAttempt method of DeliveryUseCase.
func (m *MockDeliveryUseCase) RecordAttempt(ctx context.Context, attempt deliveryDomain.Attempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

// ListEvents mocks the ListEvents method of DeliveryUseCase.
func (m *MockDeliveryUseCase) ListEvents(ctx context.Context, messageID uuid.UUID) ([]*deliveryDomain.Event, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*deliveryDomain.Event), args.Error(1)
}
