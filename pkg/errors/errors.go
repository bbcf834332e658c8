// Package errors defines the engine's wire-exposed error taxonomy (§7).
// Each variant is a distinct Go type so callers can type-switch or use
// errors.As; cockroachdb/errors gives every instance a captured stack trace
// without changing the taxonomy's shape.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Code is the wire discriminant for an error variant (§6.1 response tags).
type Code uint8

const (
	CodeValidation Code = iota + 1
	CodeUnknownConcept
	CodeNotFound
	CodeOverloaded
	CodeTimeout
	CodeDurability
	CodeIncompatibleFormat
	CodeProtocolViolation
	CodeAuthError
)

// ValidationError — malformed input, unsupported vector dimension, empty
// content. Not retryable; the client must fix the request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("validation: %s", e.Reason) }
func (e *ValidationError) Code() Code    { return CodeValidation }

// UnknownConceptError — an association referenced a concept absent from the
// current snapshot.
type UnknownConceptError struct {
	ID uint64
}

func (e *UnknownConceptError) Error() string {
	return fmt.Sprintf("unknown concept: %d", e.ID)
}
func (e *UnknownConceptError) Code() Code { return CodeUnknownConcept }

// NotFoundError — lookup miss.
type NotFoundError struct {
	ID uint64
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %d", e.ID) }
func (e *NotFoundError) Code() Code    { return CodeNotFound }

// OverloadedError — back-pressure or rate-limit; retryable with backoff.
type OverloadedError struct {
	Reason string
}

func (e *OverloadedError) Error() string { return fmt.Sprintf("overloaded: %s", e.Reason) }
func (e *OverloadedError) Code() Code    { return CodeOverloaded }

// TimeoutError — deadline exceeded; retryable, mutation may or may not have
// committed.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout: %s", e.Op) }
func (e *TimeoutError) Code() Code    { return CodeTimeout }

// DurabilityError — WAL write failed; connection is closed, server may enter
// a read-only state until operator intervention.
type DurabilityError struct {
	Cause error
}

func (e *DurabilityError) Error() string { return fmt.Sprintf("durability: %v", e.Cause) }
func (e *DurabilityError) Code() Code    { return CodeDurability }
func (e *DurabilityError) Unwrap() error { return e.Cause }

// IncompatibleFormatError — startup/configuration error; fatal.
type IncompatibleFormatError struct {
	Reason string
}

func (e *IncompatibleFormatError) Error() string {
	return fmt.Sprintf("incompatible format: %s", e.Reason)
}
func (e *IncompatibleFormatError) Code() Code { return CodeIncompatibleFormat }

// ProtocolViolationError — framing or decode error; connection closed.
type ProtocolViolationError struct {
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}
func (e *ProtocolViolationError) Code() Code { return CodeProtocolViolation }

// AuthError — handshake or HMAC mismatch; connection closed.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return fmt.Sprintf("auth: %s", e.Reason) }
func (e *AuthError) Code() Code    { return CodeAuthError }

// Wrap attaches a stack trace via cockroachdb/errors without altering the
// wrapped error's type, so callers can still errors.As into the variants
// above after it has passed through a layer that only wanted context.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, context)
}

// Coded is satisfied by every variant above; CodeOf uses it to pick the
// wire discriminant without a type switch per variant.
type Coded interface {
	error
	Code() Code
}

// CodeOf extracts the wire code for err, defaulting to 0 (unspecified) for
// errors outside the taxonomy. The protocol codec's ErrorResponse sends
// such an error to the client with code 0.
func CodeOf(err error) Code {
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return 0
}
