package ledgererror

import (
	"errors"
	"fmt"
)

// Code classifies every failure the bridge can see at the ledger boundary.
// Codes are stored stringified on outbox rows, so they must stay stable.
type Code string

const (
	// ErrUnreachable covers transient infrastructure failures: connection
	// refused, deadline exceeded, ordering service down.
	ErrUnreachable Code = "LEDGER_UNREACHABLE"
	// ErrEndorsement means too few organizations endorsed the proposal. It is
	// transient: the missing organization may come back.
	ErrEndorsement Code = "ENDORSEMENT_INSUFFICIENT"
	// ErrRejected is a business-rule rejection from the ledger handler.
	// Never retried; the handler already decided.
	ErrRejected Code = "HANDLER_REJECTED"
	// ErrContract marks a producer/dispatcher contract violation: unknown
	// command type or malformed payload. A deployment defect.
	ErrContract Code = "CONTRACT_VIOLATION"
	// ErrDuplicate is an idempotency-key collision: the effect already
	// happened, so callers treat it as success.
	ErrDuplicate Code = "DUPLICATE_SUBMISSION"
	// ErrInternal is everything else.
	ErrInternal Code = "INTERNAL"
)

// Error is the typed error carried through outbox processing.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a typed error wrapping an underlying cause. cause may be nil.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Newf creates a typed error with a formatted message and no cause.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from err, or ErrInternal when err carries none.
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrInternal
}

// Retryable reports whether a failed submission should return to the retry
// budget. Only connectivity and endorsement-collection failures qualify;
// handler rejections and contract violations are terminal, and duplicates
// are success.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrUnreachable, ErrEndorsement, ErrInternal:
		return true
	default:
		return false
	}
}

// IsDuplicate reports whether err is an idempotency-key collision.
func IsDuplicate(err error) bool {
	return CodeOf(err) == ErrDuplicate
}
