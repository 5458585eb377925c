// Package usecase implements the suppression list: lookups performed before every
// send attempt and the bounce/complaint processing that feeds it.
package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/config"
	"github.com/allisson/courier/internal/errors"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
)

type suppressionUseCase struct {
	repo        SuppressionRepository
	softBounces SoftBounceRepository
	policy      config.SuppressionPolicy
	logger      *slog.Logger
	now         func() time.Time
}

// NewSuppressionUseCase creates a SuppressionUseCase governed by policy.
func NewSuppressionUseCase(
	repo SuppressionRepository,
	softBounces SoftBounceRepository,
	policy config.SuppressionPolicy,
	logger *slog.Logger,
) SuppressionUseCase {
	return &suppressionUseCase{
		repo:        repo,
		softBounces: softBounces,
		policy:      policy,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *suppressionUseCase) IsSuppressed(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
	communityID *int64,
) (bool, suppressionDomain.Reason, error) {
	entry, err := s.repo.FindActive(
		ctx, channel, suppressionDomain.NormalizeAddress(channel, address), communityID, s.now().UTC(),
	)
	if err != nil {
		if errors.Is(err, suppressionDomain.ErrSuppressionNotFound) {
			return false, "", nil
		}
		return false, "", err
	}
	return true, entry.Reason, nil
}

func (s *suppressionUseCase) FilterSuppressed(
	ctx context.Context,
	channel messageDomain.Channel,
	addresses []string,
	communityID *int64,
) (map[string]suppressionDomain.Reason, error) {
	if len(addresses) == 0 {
		return map[string]suppressionDomain.Reason{}, nil
	}

	// query by normalized address, answer by the caller's spelling
	byNormalized := make(map[string][]string, len(addresses))
	normalized := make([]string, 0, len(addresses))
	for _, a := range addresses {
		n := suppressionDomain.NormalizeAddress(channel, a)
		if _, seen := byNormalized[n]; !seen {
			normalized = append(normalized, n)
		}
		byNormalized[n] = append(byNormalized[n], a)
	}

	found, err := s.repo.FindActiveAddresses(ctx, channel, normalized, communityID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	result := make(map[string]suppressionDomain.Reason, len(found))
	for n, reason := range found {
		for _, original := range byNormalized[n] {
			result[original] = reason
		}
	}
	return result, nil
}

func (s *suppressionUseCase) Suppress(
	ctx context.Context,
	input SuppressInput,
) (*suppressionDomain.Entry, error) {
	if !suppressionDomain.ValidChannel(input.Channel) {
		return nil, suppressionDomain.ErrInvalidChannel
	}
	if !input.Reason.Valid() {
		return nil, suppressionDomain.ErrInvalidReason
	}
	if strings.TrimSpace(input.Address) == "" {
		return nil, suppressionDomain.ErrEmptyAddress
	}

	now := s.now().UTC()
	entry := &suppressionDomain.Entry{
		ID:          uuid.Must(uuid.NewV7()),
		Channel:     input.Channel,
		Address:     suppressionDomain.NormalizeAddress(input.Channel, input.Address),
		Reason:      input.Reason,
		Source:      input.Source,
		CommunityID: input.CommunityID,
		ExpiresAt:   input.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Upsert(ctx, entry); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("address suppressed",
			slog.String("channel", string(entry.Channel)),
			slog.String("reason", string(entry.Reason)),
		)
	}
	return entry, nil
}

func (s *suppressionUseCase) Unsuppress(
	ctx context.Context,
	channel messageDomain.Channel,
	address string,
	communityID *int64,
) error {
	if !suppressionDomain.ValidChannel(channel) {
		return suppressionDomain.ErrInvalidChannel
	}
	return s.repo.Delete(ctx, channel, suppressionDomain.NormalizeAddress(channel, address), communityID)
}

func (s *suppressionUseCase) List(ctx context.Context, offset, limit int) ([]*suppressionDomain.Entry, error) {
	return s.repo.List(ctx, offset, limit)
}

func (s *suppressionUseCase) RecordHardBounce(
	ctx context.Context,
	channel messageDomain.Channel,
	address, source string,
) error {
	_, err := s.Suppress(ctx, SuppressInput{
		Channel:   channel,
		Address:   address,
		Reason:    suppressionDomain.ReasonHardBounce,
		Source:    &source,
		ExpiresAt: s.expiry(s.policy.HardBouncePermanent, s.policy.HardBounceTTL),
	})
	if err != nil {
		return err
	}
	return s.softBounces.Reset(ctx, channel, suppressionDomain.NormalizeAddress(channel, address))
}

func (s *suppressionUseCase) RecordSoftBounce(
	ctx context.Context,
	channel messageDomain.Channel,
	address, source string,
) (bool, error) {
	normalized := suppressionDomain.NormalizeAddress(channel, address)

	count, err := s.softBounces.Increment(ctx, channel, normalized, s.now().UTC())
	if err != nil {
		return false, err
	}
	if count < s.policy.SoftBounceThreshold {
		return false, nil
	}

	_, err = s.Suppress(ctx, SuppressInput{
		Channel:   channel,
		Address:   normalized,
		Reason:    suppressionDomain.ReasonSoftBounce,
		Source:    &source,
		ExpiresAt: s.expiry(false, s.policy.SoftBounceTTL),
	})
	if err != nil {
		return false, err
	}
	if err := s.softBounces.Reset(ctx, channel, normalized); err != nil {
		return true, err
	}
	return true, nil
}

func (s *suppressionUseCase) RecordComplaint(
	ctx context.Context,
	channel messageDomain.Channel,
	address, source string,
) error {
	_, err := s.Suppress(ctx, SuppressInput{
		Channel:   channel,
		Address:   address,
		Reason:    suppressionDomain.ReasonComplaint,
		Source:    &source,
		ExpiresAt: s.expiry(s.policy.ComplaintPermanent, s.policy.ComplaintTTL),
	})
	return err
}

func (s *suppressionUseCase) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now().UTC())
}

// expiry returns nil for permanent suppressions. A non-positive ttl is permanent too.
func (s *suppressionUseCase) expiry(permanent bool, ttl time.Duration) *time.Time {
	if permanent || ttl <= 0 {
		return nil
	}
	at := s.now().UTC().Add(ttl)
	return &at
}
