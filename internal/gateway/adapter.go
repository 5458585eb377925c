// Package gateway defines the contract every provider integration implements and the
// registry the dispatcher resolves adapters from.
package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// OutboundMessage is the rendered payload handed to an adapter.
type OutboundMessage struct {
	MessageID uuid.UUID
	Priority  messageDomain.Priority
	Channel   messageDomain.Channel
	Address   string
	Subject   *string
	Body      *string
	Template  *string
	Variables map[string]any
	IPPool    string
	Metadata  map[string]string
}

// Result is the outcome of sending one message. Err is nil on success and holds an
// *Error otherwise.
type Result struct {
	MessageID  uuid.UUID
	ExternalID string
	StatusCode int
	Err        error
}

// OK reports whether the provider accepted the message.
func (r Result) OK() bool {
	return r.Err == nil
}

// RateStatus is the provider-side throughput view an adapter reports.
type RateStatus struct {
	Gateway   string    `json:"gateway"`
	PerSecond int       `json:"per_second"`
	Available float64   `json:"available"`
	Throttled bool      `json:"throttled"`
	CheckedAt time.Time `json:"checked_at"`
}

// Adapter is a provider integration. Implementations must be safe for concurrent use.
type Adapter interface {
	Name() string
	Channel() messageDomain.Channel
	// MaxBatchSize is the largest slice SendBatch accepts. 1 means no batch support.
	MaxBatchSize() int
	// Send submits one message. A non-nil error is an *Error describing the failure.
	Send(ctx context.Context, msg OutboundMessage) (Result, error)
	// SendBatch submits up to MaxBatchSize messages and returns one Result per input,
	// in input order. A non-nil error means the whole batch failed and no Result is
	// meaningful.
	SendBatch(ctx context.Context, msgs []OutboundMessage) ([]Result, error)
	IsAvailable(ctx context.Context) bool
	GetRateStatus(ctx context.Context) RateStatus
}
