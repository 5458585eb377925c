// Package domain defines suppression list entries and soft-bounce counters.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// ChannelAll suppresses an address on every channel.
const ChannelAll messageDomain.Channel = "all"

// Reason explains why an address is suppressed.
type Reason string

const (
	ReasonHardBounce  Reason = "hard_bounce"
	ReasonSoftBounce  Reason = "soft_bounce"
	ReasonComplaint   Reason = "complaint"
	ReasonUnsubscribe Reason = "unsubscribe"
	ReasonManual      Reason = "manual"
	ReasonLegal       Reason = "legal"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonHardBounce, ReasonSoftBounce, ReasonComplaint, ReasonUnsubscribe, ReasonManual, ReasonLegal:
		return true
	default:
		return false
	}
}

// Entry is one row of the suppression list. A nil CommunityID scopes the entry
// globally; a nil ExpiresAt makes it permanent.
type Entry struct {
	ID          uuid.UUID
	Channel     messageDomain.Channel
	Address     string
	Reason      Reason
	Source      *string
	CommunityID *int64
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsActive reports whether the entry still suppresses at now.
func (e *Entry) IsActive(now time.Time) bool {
	return e.ExpiresAt == nil || now.Before(*e.ExpiresAt)
}

// Matches reports whether the entry applies to a send on channel for communityID.
func (e *Entry) Matches(channel messageDomain.Channel, communityID *int64) bool {
	if e.Channel != ChannelAll && e.Channel != channel {
		return false
	}
	if e.CommunityID == nil {
		return true
	}
	return communityID != nil && *communityID == *e.CommunityID
}

// ValidChannel reports whether c can scope a suppression.
func ValidChannel(c messageDomain.Channel) bool {
	return c == ChannelAll || c.Valid()
}

// NormalizeAddress canonicalizes an address so lookups hit the index. Email
// addresses are case-insensitive; phone numbers and push tokens are only trimmed.
func NormalizeAddress(channel messageDomain.Channel, address string) string {
	address = strings.TrimSpace(address)
	if channel == messageDomain.ChannelEmail || strings.Contains(address, "@") {
		return strings.ToLower(address)
	}
	return address
}

// ScopeID maps an optional community to the non-null scope column (0 = global).
func ScopeID(communityID *int64) int64 {
	if communityID == nil {
		return 0
	}
	return *communityID
}

// CommunityFromScope is the inverse of ScopeID.
func CommunityFromScope(scope int64) *int64 {
	if scope == 0 {
		return nil
	}
	return &scope
}
