// Package domain defines the message queue entity, its state machine and the
// enqueue/status contracts consumed by the campaign, alert, newsletter and
// emergency collaborators.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is one message intent tracked from enqueue to a terminal state.
//
// The Dispatcher is the only writer while a row is locked; the Ingestor only
// touches the delivery markers (DeliveredAt, OpenedAt, ClickedAt, BouncedAt,
// BounceReason), which never move Status backward.
type Message struct {
	ID          uuid.UUID
	Priority    Priority
	MessageType MessageType
	Channel     Channel

	CommunityID      *int64
	RecipientType    *string
	RecipientID      *int64
	RecipientAddress string

	Subject   *string
	Body      *string
	Template  *string
	Variables map[string]any

	SourceType *string
	SourceID   *int64

	IPPool  *string // requested pool override
	Gateway *string // assigned at send time

	Status       Status
	ScheduledFor time.Time
	LockedBy     *string
	LockToken    *uuid.UUID
	LockedAt     *time.Time

	SentAt       *time.Time
	DeliveredAt  *time.Time
	OpenedAt     *time.Time
	ClickedAt    *time.Time
	BouncedAt    *time.Time
	BounceReason *string
	ExternalID   *string

	Attempts    int
	MaxAttempts int
	LastError   *string
	NextRetryAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Deadline returns the absolute time after which the message must be expired.
// The age is measured from ScheduledFor so future-dated sends are not expired
// before they become due.
func (m *Message) Deadline(maxAge time.Duration) time.Time {
	anchor := m.ScheduledFor
	if anchor.IsZero() || anchor.Before(m.CreatedAt) {
		anchor = m.CreatedAt
	}
	return anchor.Add(maxAge)
}

// IsExpired reports whether the priority deadline has elapsed at now.
func (m *Message) IsExpired(maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		return false
	}
	return now.After(m.Deadline(maxAge))
}

// HoldsLock reports whether the given lock token is the current claim on the row.
func (m *Message) HoldsLock(token uuid.UUID) bool {
	return m.LockToken != nil && *m.LockToken == token
}

// Lock identifies a single claim of a row by a dispatcher worker. Every mutation of a
// claimed row is conditioned on Token so a worker whose lock went stale can never
// overwrite the work of the worker that reclaimed the row.
type Lock struct {
	WorkerID string
	Token    uuid.UUID
	At       time.Time
}

// ClaimRequest describes one atomic claim of due rows for a single priority tier.
type ClaimRequest struct {
	Lock        Lock
	Priority    Priority
	Now         time.Time
	StaleBefore time.Time // locks older than this are considered abandoned
	Limit       int
}

// Completion is the outcome written when an attempt finishes. It releases the lock.
type Completion struct {
	Status      Status
	Gateway     *string
	IPPool      *string
	ExternalID  *string
	Attempts    int
	LastError   *string
	NextRetryAt *time.Time
	SentAt      *time.Time
	At          time.Time
}

// Apply copies the completion fields onto the message and clears the lock.
func (m *Message) Apply(c Completion) {
	m.Status = c.Status
	if c.Gateway != nil {
		m.Gateway = c.Gateway
	}
	if c.IPPool != nil {
		m.IPPool = c.IPPool
	}
	if c.ExternalID != nil {
		m.ExternalID = c.ExternalID
	}
	m.Attempts = c.Attempts
	m.LastError = c.LastError
	m.NextRetryAt = c.NextRetryAt
	if c.SentAt != nil {
		m.SentAt = c.SentAt
	}
	m.LockedBy = nil
	m.LockToken = nil
	m.LockedAt = nil
	m.UpdatedAt = c.At
}

// StatusView is the read model returned by the status contract.
type StatusView struct {
	ID           uuid.UUID  `json:"id"`
	Status       Status     `json:"status"`
	Channel      Channel    `json:"channel"`
	Priority     Priority   `json:"priority"`
	Gateway      *string    `json:"gateway,omitempty"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
	ClickedAt    *time.Time `json:"clicked_at,omitempty"`
	BouncedAt    *time.Time `json:"bounced_at,omitempty"`
	BounceReason *string    `json:"bounce_reason,omitempty"`
	ExternalID   *string    `json:"external_id,omitempty"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	LastError    *string    `json:"last_error,omitempty"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
}

// View builds the status read model of the message.
func (m *Message) View() StatusView {
	return StatusView{
		ID:           m.ID,
		Status:       m.Status,
		Channel:      m.Channel,
		Priority:     m.Priority,
		Gateway:      m.Gateway,
		ScheduledFor: m.ScheduledFor,
		SentAt:       m.SentAt,
		DeliveredAt:  m.DeliveredAt,
		OpenedAt:     m.OpenedAt,
		ClickedAt:    m.ClickedAt,
		BouncedAt:    m.BouncedAt,
		BounceReason: m.BounceReason,
		ExternalID:   m.ExternalID,
		Attempts:     m.Attempts,
		MaxAttempts:  m.MaxAttempts,
		LastError:    m.LastError,
		NextRetryAt:  m.NextRetryAt,
	}
}

// QueueCount is the number of rows sharing a priority and status.
type QueueCount struct {
	Priority Priority
	Status   Status
	Count    int64
}

// QueueStats maps each priority to its row counts per status. Pairs with no rows
// are absent.
type QueueStats map[Priority]map[Status]int64

// NewQueueStats folds grouped counts into a QueueStats.
func NewQueueStats(counts []QueueCount) QueueStats {
	stats := make(QueueStats)
	for _, c := range counts {
		if c.Count == 0 {
			continue
		}
		byStatus, ok := stats[c.Priority]
		if !ok {
			byStatus = make(map[Status]int64)
			stats[c.Priority] = byStatus
		}
		byStatus[c.Status] += c.Count
	}
	return stats
}

// Total returns the number of rows across every priority and status.
func (s QueueStats) Total() int64 {
	var n int64
	for _, byStatus := range s {
		for _, c := range byStatus {
			n += c
		}
	}
	return n
}
