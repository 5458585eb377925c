// Package errors holds the sentinel errors use cases wrap to express intent.
// Handlers map them to status codes in httputil; nothing above the repositories
// should return driver errors unwrapped.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the message, event or suppression entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the resource is in a state that forbids the operation,
	// such as cancelling a message a worker already claimed.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput means the request is well formed but semantically wrong.
	ErrInvalidInput = errors.New("invalid input")
)

// New is errors.New.
func New(message string) error {
	return errors.New(message)
}

// Wrap prefixes err with message, keeping it matchable with Is. Nil stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Is is errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
