package domain

import (
	"github.com/allisson/courier/internal/errors"
)

// Delivery event errors.
var (
	// ErrDuplicateEvent indicates (source, external_event_id) was already stored.
	ErrDuplicateEvent = errors.Wrap(errors.ErrConflict, "delivery event already ingested")

	// ErrInvalidEventType indicates an unknown event type.
	ErrInvalidEventType = errors.Wrap(errors.ErrInvalidInput, "invalid event type")

	// ErrMissingSource indicates an event without a source.
	ErrMissingSource = errors.Wrap(errors.ErrInvalidInput, "event source is required")

	// ErrMissingMessageReference indicates an event carrying neither message id nor
	// provider message id.
	ErrMissingMessageReference = errors.Wrap(errors.ErrInvalidInput, "event must reference a message")
)
