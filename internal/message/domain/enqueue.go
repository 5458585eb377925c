package domain

import (
	"time"

	"github.com/google/uuid"
)

// EnqueueInput is a single message intent submitted by a collaborator. Content is
// already rendered (Subject/Body) or referenced by Template + Variables.
type EnqueueInput struct {
	Priority    Priority
	MessageType MessageType
	Channel     Channel

	CommunityID      *int64
	RecipientAddress string
	RecipientID      *int64
	RecipientType    *string

	Subject   *string
	Body      *string
	Template  *string
	Variables map[string]any

	SourceType *string
	SourceID   *int64

	IPPool       *string
	ScheduledFor *time.Time
}

// Recipient is one addressee of a bulk request. Variables are merged over the
// request's shared variables.
type Recipient struct {
	Address   string
	ID        *int64
	Type      *string
	Variables map[string]any
}

// BulkEnqueueInput is a list of recipients sharing template, content and routing.
type BulkEnqueueInput struct {
	Priority    Priority
	MessageType MessageType
	Channel     Channel

	CommunityID *int64

	Subject         *string
	Body            *string
	Template        *string
	SharedVariables map[string]any

	SourceType *string
	SourceID   *int64

	IPPool       *string
	ScheduledFor *time.Time

	Recipients []Recipient
}

// Outcome is the per-recipient result of an enqueue request.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeInvalid    Outcome = "invalid"
)

// EnqueueResult reports what happened to a single recipient.
type EnqueueResult struct {
	ID      *uuid.UUID `json:"id,omitempty"`
	Address string     `json:"address"`
	Outcome Outcome    `json:"outcome"`
	Reason  string     `json:"reason,omitempty"`
}

// BulkEnqueueResult aggregates per-recipient outcomes of a bulk request.
type BulkEnqueueResult struct {
	Queued     int             `json:"queued"`
	Suppressed int             `json:"suppressed"`
	Invalid    int             `json:"invalid"`
	Results    []EnqueueResult `json:"results"`
}

// MergeVariables returns shared overlaid with own, without mutating either map.
func MergeVariables(shared, own map[string]any) map[string]any {
	if len(shared) == 0 && len(own) == 0 {
		return nil
	}
	merged := make(map[string]any, len(shared)+len(own))
	for k, v := range shared {
		merged[k] = v
	}
	for k, v := range own {
		merged[k] = v
	}
	return merged
}
