package domain

import (
	"fmt"
	"strings"
)

// Priority is the delivery tier of a message. P0 is the most urgent.
type Priority string

const (
	PriorityP0 Priority = "P0" // emergency broadcast
	PriorityP1 Priority = "P1" // alert
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4" // transactional / bulk
)

// PriorityCount is the number of priority tiers.
const PriorityCount = 5

// Priorities lists all tiers ordered from highest to lowest.
var Priorities = [PriorityCount]Priority{PriorityP0, PriorityP1, PriorityP2, PriorityP3, PriorityP4}

// Rank returns the zero-based ordinal of the tier (P0 = 0). Returns -1 for unknown values.
func (p Priority) Rank() int {
	switch p {
	case PriorityP0:
		return 0
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	case PriorityP4:
		return 4
	default:
		return -1
	}
}

// Valid reports whether p is one of the known tiers.
func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// ParsePriority converts a string such as "P1" or "p1" into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q", s)
	}
	return p, nil
}

// Channel is the delivery medium, independent of the gateway that serves it.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// ChannelCount is the number of delivery channels.
const ChannelCount = 3

// Channels lists all channels in index order.
var Channels = [ChannelCount]Channel{ChannelEmail, ChannelSMS, ChannelPush}

// Index returns the ordinal of the channel, or -1 for unknown values.
func (c Channel) Index() int {
	switch c {
	case ChannelEmail:
		return 0
	case ChannelSMS:
		return 1
	case ChannelPush:
		return 2
	default:
		return -1
	}
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c.Index() >= 0
}

// ParseChannel converts a string into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("invalid channel %q", s)
	}
	return c, nil
}

// MessageType classifies what produced the message.
type MessageType string

const (
	MessageTypeEmergency     MessageType = "emergency"
	MessageTypeAlert         MessageType = "alert"
	MessageTypeNewsletter    MessageType = "newsletter"
	MessageTypeCampaign      MessageType = "campaign"
	MessageTypeTransactional MessageType = "transactional"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeEmergency, MessageTypeAlert, MessageTypeNewsletter,
		MessageTypeCampaign, MessageTypeTransactional:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusPending        Status = "pending"
	StatusLocked         Status = "locked"
	StatusSending        Status = "sending"
	StatusSent           Status = "sent"
	StatusRetryScheduled Status = "retry_scheduled"
	StatusFailed         Status = "failed"
	StatusExpired        Status = "expired"
	StatusCancelled      Status = "cancelled"
)

// IsTerminal reports whether no further dispatch transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsClaimable reports whether a row in this status may be claimed once it is due.
func (s Status) IsClaimable() bool {
	return s == StatusPending || s == StatusRetryScheduled
}

// IsCancellable reports whether an external cancel request can be honored.
func (s Status) IsCancellable() bool {
	return s == StatusPending || s == StatusRetryScheduled
}

// transitions enumerates every allowed status change.
var transitions = map[Status][]Status{
	StatusPending:        {StatusLocked, StatusCancelled},
	StatusRetryScheduled: {StatusLocked, StatusCancelled},
	StatusLocked: {
		StatusSending,
		StatusRetryScheduled,
		StatusFailed,
		StatusExpired,
		StatusLocked, // stale lock reclaimed by another worker
	},
	StatusSending: {
		StatusSent,
		StatusRetryScheduled,
		StatusFailed,
		StatusExpired,
		StatusLocked,
	},
}

// CanTransition reports whether a row may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Failure reasons recorded in last_error for terminal or rescheduled rows.
const (
	ReasonSuppressed             = "suppressed"
	ReasonRateLimited            = "rate_limited"
	ReasonExpired                = "expired"
	ReasonCancelled              = "cancelled"
	ReasonChannelDisabled        = "channel_disabled"
	ReasonMaxAttemptsExceeded    = "max_attempts_exceeded"
	ReasonSuppressionUnavailable = "suppression_unavailable"
)
