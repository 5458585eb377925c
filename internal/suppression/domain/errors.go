package domain

import (
	"github.com/allisson/courier/internal/errors"
)

// Suppression errors.
var (
	// ErrSuppressionNotFound indicates no active suppression matches.
	ErrSuppressionNotFound = errors.Wrap(errors.ErrNotFound, "suppression not found")

	// ErrInvalidReason indicates an unknown suppression reason.
	ErrInvalidReason = errors.Wrap(errors.ErrInvalidInput, "invalid suppression reason")

	// ErrInvalidChannel indicates a channel that cannot scope a suppression.
	ErrInvalidChannel = errors.Wrap(errors.ErrInvalidInput, "invalid suppression channel")

	// ErrEmptyAddress indicates a suppression without an address.
	ErrEmptyAddress = errors.Wrap(errors.ErrInvalidInput, "suppression address is required")
)
