// Package usecase implements the dispatcher: it claims due messages, gates them
// through expiry, suppression, routing and rate limiting, sends them through gateway
// adapters and writes the outcome of each attempt.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	"github.com/allisson/courier/internal/dispatch/service"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	rateLimitDomain "github.com/allisson/courier/internal/ratelimit/domain"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
)

// Config holds dispatcher settings.
type Config struct {
	WorkerID       string
	Workers        int
	BatchSize      int
	PollInterval   time.Duration
	LockStaleAfter time.Duration
}

// MessageRepository is the part of the queue store the dispatcher writes through.
type MessageRepository interface {
	ClaimDue(ctx context.Context, req messageDomain.ClaimRequest) ([]*messageDomain.Message, error)
	MarkSending(ctx context.Context, id, token uuid.UUID, at time.Time) error
	Complete(ctx context.Context, id, token uuid.UUID, c messageDomain.Completion) error
}

// SuppressionChecker answers whether a send must be blocked.
type SuppressionChecker interface {
	IsSuppressed(
		ctx context.Context,
		channel messageDomain.Channel,
		address string,
		communityID *int64,
	) (bool, suppressionDomain.Reason, error)
}

// GatewayRouter selects the gateway of one attempt.
type GatewayRouter interface {
	SelectGateway(channel messageDomain.Channel, msg *messageDomain.Message) (service.Route, error)
}

// Limiter admits sends against the shared rate limit counters.
type Limiter interface {
	TryAdmit(
		ctx context.Context,
		key rateLimitDomain.Key,
		ceiling rateLimitDomain.Ceiling,
	) (rateLimitDomain.Decision, error)
}

// AttemptRecorder records gateway calls as delivery events and health samples.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt deliveryDomain.Attempt) error
}

// Dispatcher drives message delivery.
type Dispatcher interface {
	// Run starts the configured number of workers and blocks until ctx is done.
	Run(ctx context.Context) error
	// RunOnce claims one batch and processes it. It returns the number of claimed rows.
	RunOnce(ctx context.Context) (int, error)
	// Wake makes idle workers poll immediately.
	Wake()
}
