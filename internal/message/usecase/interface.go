// Package usecase implements the enqueue, status and cancel contracts of the message
// queue.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	messageDomain "github.com/allisson/courier/internal/message/domain"
	suppressionDomain "github.com/allisson/courier/internal/suppression/domain"
)

// MessageRepository is the subset of the queue store used by the enqueue contract.
type MessageRepository interface {
	Create(ctx context.Context, msg *messageDomain.Message) error
	CreateBatch(ctx context.Context, msgs []*messageDomain.Message) error
	Get(ctx context.Context, id uuid.UUID) (*messageDomain.Message, error)
	// Cancel moves a pending or retry-scheduled row to cancelled. Returns
	// ErrNotCancellable once the row was claimed.
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) error
	// CountByPriorityStatus returns the row count of every (priority, status) pair
	// present in the queue.
	CountByPriorityStatus(ctx context.Context) ([]messageDomain.QueueCount, error)
}

// SuppressionChecker answers enqueue-time suppression lookups.
type SuppressionChecker interface {
	IsSuppressed(
		ctx context.Context,
		channel messageDomain.Channel,
		address string,
		communityID *int64,
	) (bool, suppressionDomain.Reason, error)
	FilterSuppressed(
		ctx context.Context,
		channel messageDomain.Channel,
		addresses []string,
		communityID *int64,
	) (map[string]suppressionDomain.Reason, error)
}

// EventLister returns the delivery events of a message.
type EventLister interface {
	ListEvents(ctx context.Context, messageID uuid.UUID) ([]*deliveryDomain.Event, error)
}

// Waker nudges an idle dispatcher so urgent messages do not wait for the next poll.
type Waker interface {
	Wake()
}

// MessageUseCase defines the enqueue, status and cancel operations.
type MessageUseCase interface {
	// Enqueue validates and queues one message. An unusable or suppressed address is
	// reported in the result, not as an error.
	Enqueue(ctx context.Context, input messageDomain.EnqueueInput) (*messageDomain.EnqueueResult, error)
	// EnqueueBulk queues one message per accepted recipient in a single transaction.
	EnqueueBulk(ctx context.Context, input messageDomain.BulkEnqueueInput) (*messageDomain.BulkEnqueueResult, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*messageDomain.StatusView, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	ListEvents(ctx context.Context, id uuid.UUID) ([]*deliveryDomain.Event, error)
	// QueueStats returns the queue row counts grouped by priority and status.
	QueueStats(ctx context.Context) (messageDomain.QueueStats, error)
}
