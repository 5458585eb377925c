package gateway

import (
	"context"
	"errors"
	"fmt"
)

// FailureClass tells the dispatcher whether a failed send may be retried.
type FailureClass string

const (
	ClassTransient        FailureClass = "transient"
	ClassPermanent        FailureClass = "permanent"
	ClassInvalidRecipient FailureClass = "invalid_recipient"
)

// Error codes recorded in last_error.
const (
	CodeUnavailable      = "gateway_unavailable"
	CodeTimeout          = "gateway_timeout"
	CodeRejected         = "gateway_rejected"
	CodeInvalidRecipient = "invalid_recipient"
	CodeThrottled        = "gateway_throttled"
)

// Error is a typed adapter failure.
type Error struct {
	Gateway    string
	Class      FailureClass
	Code       string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Gateway, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e.Class == ClassTransient
}

// Unavailable builds a transient failure for a provider outage or 5xx answer.
func Unavailable(gateway string, statusCode int, message string) *Error {
	return &Error{
		Gateway:    gateway,
		Class:      ClassTransient,
		Code:       CodeUnavailable,
		StatusCode: statusCode,
		Message:    message,
	}
}

// Timeout builds a transient failure for a call that exceeded its deadline.
func Timeout(gateway string, err error) *Error {
	return &Error{Gateway: gateway, Class: ClassTransient, Code: CodeTimeout, Err: err}
}

// Rejected builds a permanent failure for a provider refusing the message.
func Rejected(gateway string, statusCode int, message string) *Error {
	return &Error{
		Gateway:    gateway,
		Class:      ClassPermanent,
		Code:       CodeRejected,
		StatusCode: statusCode,
		Message:    message,
	}
}

// InvalidRecipient builds a permanent failure for an undeliverable address.
func InvalidRecipient(gateway, message string) *Error {
	return &Error{Gateway: gateway, Class: ClassInvalidRecipient, Code: CodeInvalidRecipient, Message: message}
}

// AsError converts any send error into an *Error. Deadline and cancellation errors
// become timeouts; unknown errors are treated as transient unavailability.
func AsError(gateway string, err error) *Error {
	if err == nil {
		return nil
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Timeout(gateway, err)
	}
	return &Error{Gateway: gateway, Class: ClassTransient, Code: CodeUnavailable, Err: err}
}

// Classify returns the failure class of err. nil yields an empty class.
func Classify(err error) FailureClass {
	if err == nil {
		return ""
	}
	return AsError("", err).Class
}
