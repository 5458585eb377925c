package usecase

import (
	"context"
	"time"

	messageDomain "github.com/allisson/courier/internal/message/domain"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
)

// SuppressionRepository defines the interface for suppression list persistence.
type SuppressionRepository interface {
	// FindActive returns the first active entry matching the address on channel (or
	// ChannelAll), scoped globally or to communityID. Returns ErrSuppressionNotFound.
	FindActive(
		ctx context.Context,
		channel messageDomain.Channel,
		address string,
		communityID *int64,
		now time.Time,
	) (*suppressionDomain.Entry, error)
	// FindActiveAddresses returns the reason of every suppressed address among addresses.
	FindActiveAddresses(
		ctx context.Context,
		channel messageDomain.Channel,
		addresses []string,
		communityID *int64,
		now time.Time,
	) (map[string]suppressionDomain.Reason, error)
	// Upsert inserts the entry or refreshes reason, source and expiry of the existing
	// (channel, address, community) row.
	Upsert(ctx context.Context, entry *suppressionDomain.Entry) error
	Delete(ctx context.Context, channel messageDomain.Channel, address string, communityID *int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context, offset, limit int) ([]*suppressionDomain.Entry, error)
}

// SoftBounceRepository tracks consecutive soft bounces per address.
type SoftBounceRepository interface {
	// Increment atomically adds one bounce and returns the new count.
	Increment(ctx context.Context, channel messageDomain.Channel, address string, at time.Time) (int, error)
	Reset(ctx context.Context, channel messageDomain.Channel, address string) error
}

// SuppressInput describes a manual or automated suppression.
type SuppressInput struct {
	Channel     messageDomain.Channel
	Address     string
	Reason      suppressionDomain.Reason
	Source      *string
	CommunityID *int64
	ExpiresAt   *time.Time
}

// SuppressionUseCase defines the suppression list operations.
type SuppressionUseCase interface {
	// IsSuppressed answers whether a send to address on channel must be blocked.
	IsSuppressed(
		ctx context.Context,
		channel messageDomain.Channel,
		address string,
		communityID *int64,
	) (bool, suppressionDomain.Reason, error)
	// FilterSuppressed returns the suppressed subset of addresses with their reasons.
	FilterSuppressed(
		ctx context.Context,
		channel messageDomain.Channel,
		addresses []string,
		communityID *int64,
	) (map[string]suppressionDomain.Reason, error)
	Suppress(ctx context.Context, input SuppressInput) (*suppressionDomain.Entry, error)
	Unsuppress(ctx context.Context, channel messageDomain.Channel, address string, communityID *int64) error
	List(ctx context.Context, offset, limit int) ([]*suppressionDomain.Entry, error)
	RecordHardBounce(ctx context.Context, channel messageDomain.Channel, address, source string) error
	// RecordSoftBounce counts a soft bounce and reports whether it crossed the threshold.
	RecordSoftBounce(ctx context.Context, channel messageDomain.Channel, address, source string) (bool, error)
	RecordComplaint(ctx context.Context, channel messageDomain.Channel, address, source string) error
	// PurgeExpired deletes entries whose expiry has passed.
	PurgeExpired(ctx context.Context) (int64, error)
}
