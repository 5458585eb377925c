package domain

import (
	"github.com/allisson/courier/internal/errors"
)

// Message queue errors.
var (
	// ErrMessageNotFound indicates no message exists with the given id.
	ErrMessageNotFound = errors.Wrap(errors.ErrNotFound, "message not found")

	// ErrNotCancellable indicates the message already left the pending/retry states.
	ErrNotCancellable = errors.Wrap(errors.ErrConflict, "message can no longer be cancelled")

	// ErrLockLost indicates the caller's claim on the row is no longer current.
	ErrLockLost = errors.Wrap(errors.ErrConflict, "message lock lost")

	// ErrInvalidTransition indicates a status change that the state machine forbids.
	ErrInvalidTransition = errors.Wrap(errors.ErrConflict, "invalid status transition")

	// ErrInvalidPriority indicates an unknown priority tier.
	ErrInvalidPriority = errors.Wrap(errors.ErrInvalidInput, "invalid priority")

	// ErrInvalidChannel indicates an unknown delivery channel.
	ErrInvalidChannel = errors.Wrap(errors.ErrInvalidInput, "invalid channel")

	// ErrInvalidMessageType indicates an unknown message type.
	ErrInvalidMessageType = errors.Wrap(errors.ErrInvalidInput, "invalid message type")

	// ErrMissingContent indicates a message with neither a body nor a template.
	ErrMissingContent = errors.Wrap(errors.ErrInvalidInput, "either body or template is required")

	// ErrEmptyBulk indicates a bulk request without recipients.
	ErrEmptyBulk = errors.Wrap(errors.ErrInvalidInput, "bulk request has no recipients")
)
