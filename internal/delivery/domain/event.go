// Package domain defines delivery events: the append-only record of what happened to
// a message after the dispatcher handed it to a gateway.
package domain

import (
	"time"

	"github.com/google/uuid"

	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// EventType is the kind of a delivery event.
type EventType string

const (
	EventSent       EventType = "sent"
	EventDelivered  EventType = "delivered"
	EventOpened     EventType = "opened"
	EventClicked    EventType = "clicked"
	EventBounced    EventType = "bounced"
	EventComplained EventType = "complained"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventSent, EventDelivered, EventOpened, EventClicked, EventBounced, EventComplained:
		return true
	default:
		return false
	}
}

// BounceType distinguishes permanent from temporary bounces.
type BounceType string

const (
	BounceHard BounceType = "hard"
	BounceSoft BounceType = "soft"
)

// Event is one immutable delivery event.
type Event struct {
	ID              uuid.UUID      `json:"id"`
	MessageID       uuid.UUID      `json:"message_id"`
	Type            EventType      `json:"type"`
	Payload         map[string]any `json:"payload,omitempty"`
	Source          string         `json:"source"`
	ExternalEventID *string        `json:"external_event_id,omitempty"`
	OccurredAt      time.Time      `json:"occurred_at"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Inbound is a normalized provider callback. The target message is identified by
// MessageID or, when the provider only knows its own id, by ExternalMessageID.
type Inbound struct {
	Source            string
	ExternalEventID   *string
	MessageID         *uuid.UUID
	ExternalMessageID *string
	Type              EventType
	BounceType        BounceType
	Reason            string
	Payload           map[string]any
	OccurredAt        time.Time
}

// IsHardBounce reports whether the event is a permanent bounce.
func (in Inbound) IsHardBounce() bool {
	return in.Type == EventBounced && in.BounceType == BounceHard
}

// Outcome is the result of ingesting one event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
)

// Attempt is the dispatcher's report of one gateway call, recorded as a sent event
// on success and fed to channel health either way.
type Attempt struct {
	Message    *messageDomain.Message
	Gateway    string
	IPPool     string
	ExternalID string
	Success    bool
	Reason     string
	Latency    time.Duration
	At         time.Time
}
