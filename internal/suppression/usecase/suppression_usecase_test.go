package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/config"
	apperrors "github.com/allisson/courier/internal/errors"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
	"github.com/allisson/courier/internal/suppression/repository"
)

func newTestUseCase(policy config.SuppressionPolicy, now time.Time) (*suppressionUseCase, *repository.MemorySuppressionRepository) {
	repo := repository.NewMemorySuppressionRepository()
	uc := NewSuppressionUseCase(repo, repo, policy, nil).(*suppressionUseCase)
	uc.now = func() time.Time { return now }
	return uc, repo
}

func TestSuppressionUseCase_IsSuppressed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Success_NormalizesAddress", func(t *testing.T) {
		uc, _ := newTestUseCase(config.DefaultPolicy().Suppression, now)

		_, err := uc.Suppress(ctx, SuppressInput{
			Channel: messageDomain.ChannelEmail,
			Address: "Ana@Example.com",
			Reason:  suppressionDomain.ReasonUnsubscribe,
		})
		require.NoError(t, err)

		suppressed, reason, err := uc.IsSuppressed(ctx, messageDomain.ChannelEmail, " ana@example.COM", nil)
		require.NoError(t, err)
		assert.True(t, suppressed)
		assert.Equal(t, suppressionDomain.ReasonUnsubscribe, reason)

		suppressed, _, err = uc.IsSuppressed(ctx, messageDomain.ChannelSMS, "ana@example.com", nil)
		require.NoError(t, err)
		assert.False(t, suppressed)
	})

	t.Run("Success_ExpiredEntryIsAbsent", func(t *testing.T) {
		uc, _ := newTestUseCase(config.DefaultPolicy().Suppression, now)
		expires := now.Add(time.Minute)

		_, err := uc.Suppress(ctx, SuppressInput{
			Channel:   messageDomain.ChannelSMS,
			Address:   "+15551234567",
			Reason:    suppressionDomain.ReasonManual,
			ExpiresAt: &expires,
		})
		require.NoError(t, err)

		suppressed, _, _ := uc.IsSuppressed(ctx, messageDomain.ChannelSMS, "+15551234567", nil)
		assert.True(t, suppressed)

		uc.now = func() time.Time { return now.Add(2 * time.Minute) }
		suppressed, _, err = uc.IsSuppressed(ctx, messageDomain.ChannelSMS, "+15551234567", nil)
		require.NoError(t, err)
		assert.False(t, suppressed)

		purged, err := uc.PurgeExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), purged)
	})

	t.Run("Error_InvalidInput", func(t *testing.T) {
		uc, _ := newTestUseCase(config.DefaultPolicy().Suppression, now)

		_, err := uc.Suppress(ctx, SuppressInput{Channel: "fax", Address: "x", Reason: suppressionDomain.ReasonManual})
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))

		_, err = uc.Suppress(ctx, SuppressInput{Channel: messageDomain.ChannelEmail, Address: "x", Reason: "why"})
		assert.ErrorIs(t, err, suppressionDomain.ErrInvalidReason)

		_, err = uc.Suppress(ctx, SuppressInput{Channel: messageDomain.ChannelEmail, Address: " ", Reason: suppressionDomain.ReasonManual})
		assert.ErrorIs(t, err, suppressionDomain.ErrEmptyAddress)
	})
}

func TestSuppressionUseCase_FilterSuppressed(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	uc, _ := newTestUseCase(config.DefaultPolicy().Suppression, now)

	_, err := uc.Suppress(ctx, SuppressInput{
		Channel: suppressionDomain.ChannelAll,
		Address: "blocked@example.com",
		Reason:  suppressionDomain.ReasonLegal,
	})
	require.NoError(t, err)

	found, err := uc.FilterSuppressed(ctx, messageDomain.ChannelEmail,
		[]string{"ok@example.com", "Blocked@example.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]suppressionDomain.Reason{
		"Blocked@example.com": suppressionDomain.ReasonLegal,
	}, found)
}

func TestSuppressionUseCase_Bounces(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Success_HardBouncePermanent", func(t *testing.T) {
		uc, repo := newTestUseCase(config.DefaultPolicy().Suppression, now)

		require.NoError(t, uc.RecordHardBounce(ctx, messageDomain.ChannelEmail, "gone@example.com", "postal"))

		e, err := repo.FindActive(ctx, messageDomain.ChannelEmail, "gone@example.com", nil, now.Add(1000*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, suppressionDomain.ReasonHardBounce, e.Reason)
		assert.Nil(t, e.ExpiresAt)
		assert.Equal(t, "postal", *e.Source)
	})

	t.Run("Success_HardBounceWithTTL", func(t *testing.T) {
		policy := config.DefaultPolicy().Suppression
		policy.HardBouncePermanent = false
		policy.HardBounceTTL = 24 * time.Hour
		uc, repo := newTestUseCase(policy, now)

		require.NoError(t, uc.RecordHardBounce(ctx, messageDomain.ChannelEmail, "gone@example.com", "ses"))

		e, err := repo.FindActive(ctx, messageDomain.ChannelEmail, "gone@example.com", nil, now)
		require.NoError(t, err)
		require.NotNil(t, e.ExpiresAt)
		assert.Equal(t, now.Add(24*time.Hour), *e.ExpiresAt)
	})

	t.Run("Success_SoftBounceThreshold", func(t *testing.T) {
		policy := config.DefaultPolicy().Suppression
		policy.SoftBounceThreshold = 3
		uc, _ := newTestUseCase(policy, now)

		for i := 0; i < 2; i++ {
			suppressed, err := uc.RecordSoftBounce(ctx, messageDomain.ChannelEmail, "full@example.com", "postal")
			require.NoError(t, err)
			assert.False(t, suppressed)
		}
		isSuppressed, _, _ := uc.IsSuppressed(ctx, messageDomain.ChannelEmail, "full@example.com", nil)
		assert.False(t, isSuppressed)

		suppressed, err := uc.RecordSoftBounce(ctx, messageDomain.ChannelEmail, "full@example.com", "postal")
		require.NoError(t, err)
		assert.True(t, suppressed)

		isSuppressed, reason, _ := uc.IsSuppressed(ctx, messageDomain.ChannelEmail, "full@example.com", nil)
		assert.True(t, isSuppressed)
		assert.Equal(t, suppressionDomain.ReasonSoftBounce, reason)
	})

	t.Run("Success_Complaint", func(t *testing.T) {
		uc, _ := newTestUseCase(config.DefaultPolicy().Suppression, now)

		require.NoError(t, uc.RecordComplaint(ctx, messageDomain.ChannelEmail, "angry@example.com", "ses"))
		suppressed, reason, _ := uc.IsSuppressed(ctx, messageDomain.ChannelEmail, "angry@example.com", nil)
		assert.True(t, suppressed)
		assert.Equal(t, suppressionDomain.ReasonComplaint, reason)
	})

	t.Run("Success_Unsuppress", func(t *testing.T) {
		uc, _ := newTestUseCase(config.DefaultPolicy().Suppression, now)

		require.NoError(t, uc.RecordComplaint(ctx, messageDomain.ChannelEmail, "angry@example.com", "ses"))
		require.NoError(t, uc.Unsuppress(ctx, messageDomain.ChannelEmail, "Angry@example.com", nil))

		suppressed, _, _ := uc.IsSuppressed(ctx, messageDomain.ChannelEmail, "angry@example.com", nil)
		assert.False(t, suppressed)

		err := uc.Unsuppress(ctx, messageDomain.ChannelEmail, "angry@example.com", nil)
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	})
}
