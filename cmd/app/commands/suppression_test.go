package commands

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	messageDomain "github.com/allisson/courier/internal/message/domain"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
	suppressionMocks "github.com/allisson/courier/internal/suppression/http/mocks"
	suppressionUseCase "github.com/allisson/courier/internal/suppression/usecase"
)

func TestRunSuppress(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("global-permanent", func(t *testing.T) {
		mockUseCase := &suppressionMocks.MockSuppressionUseCase{}
		mockUseCase.On("Suppress", ctx, mock.MatchedBy(func(in suppressionUseCase.SuppressInput) bool {
			return in.Channel == messageDomain.ChannelEmail &&
				in.Address == "ana@example.com" &&
				in.Reason == suppressionDomain.ReasonManual &&
				in.CommunityID == nil && in.ExpiresAt == nil &&
				in.Source != nil && *in.Source == "cli"
		})).Return(&suppressionDomain.Entry{
			ID:      uuid.Must(uuid.NewV7()),
			Channel: messageDomain.ChannelEmail,
			Address: "ana@example.com",
			Reason:  suppressionDomain.ReasonManual,
		}, nil)

		var out bytes.Buffer
		err := RunSuppress(ctx, mockUseCase, logger, &out, "email", "ana@example.com", "manual", 0, 0, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Suppressed ana@example.com on email (manual)")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("scoped-with-expiry", func(t *testing.T) {
		mockUseCase := &suppressionMocks.MockSuppressionUseCase{}
		mockUseCase.On("Suppress", ctx, mock.MatchedBy(func(in suppressionUseCase.SuppressInput) bool {
			return in.CommunityID != nil && *in.CommunityID == 42 &&
				in.ExpiresAt != nil && in.ExpiresAt.After(time.Now().Add(23*time.Hour))
		})).Return(&suppressionDomain.Entry{
			Channel: messageDomain.ChannelSMS,
			Address: "+15550001111",
			Reason:  suppressionDomain.ReasonUnsubscribe,
		}, nil)

		var out bytes.Buffer
		err := RunSuppress(ctx, mockUseCase, logger, &out, "sms", "+15550001111", "unsubscribe", 42, 24*time.Hour, "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"reason": "unsubscribe"`)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("negative-expiry", func(t *testing.T) {
		mockUseCase := &suppressionMocks.MockSuppressionUseCase{}
		err := RunSuppress(ctx, mockUseCase, logger, &bytes.Buffer{}, "sms", "+1", "manual", 0, -time.Hour, "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "must not be negative")
	})

	t.Run("invalid-reason", func(t *testing.T) {
		mockUseCase := &suppressionMocks.MockSuppressionUseCase{}
		mockUseCase.On("Suppress", ctx, mock.Anything).Return(nil, suppressionDomain.ErrInvalidReason)

		err := RunSuppress(ctx, mockUseCase, logger, &bytes.Buffer{}, "email", "a@b.c", "because", 0, 0, "text")

		require.ErrorIs(t, err, suppressionDomain.ErrInvalidReason)
	})
}

func TestRunUnsuppress(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("success", func(t *testing.T) {
		mockUseCase := &suppressionMocks.MockSuppressionUseCase{}
		mockUseCase.On("Unsuppress", ctx, messageDomain.ChannelEmail, "ana@example.com", (*int64)(nil)).Return(nil)

		var out bytes.Buffer
		err := RunUnsuppress(ctx, mockUseCase, logger, &out, "email", "ana@example.com", 0, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Removed ana@example.com")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("not-found", func(t *testing.T) {
		mockUseCase := &suppressionMocks.MockSuppressionUseCase{}
		mockUseCase.On("Unsuppress", ctx, messageDomain.ChannelEmail, "ana@example.com", (*int64)(nil)).
			Return(suppressionDomain.ErrSuppressionNotFound)

		err := RunUnsuppress(ctx, mockUseCase, logger, &bytes.Buffer{}, "email", "ana@example.com", 0, "json")

		require.ErrorIs(t, err, suppressionDomain.ErrSuppressionNotFound)
	})
}

func TestRunPurgeSuppressions(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	mockUseCase := &suppressionMocks.MockSuppressionUseCase{}
	mockUseCase.On("PurgeExpired", ctx).Return(int64(7), nil)

	var out bytes.Buffer
	err := RunPurgeSuppressions(ctx, mockUseCase, logger, &out, "json")

	require.NoError(t, err)
	require.Contains(t, out.String(), `"count": 7`)
	mockUseCase.AssertExpectations(t)
}
