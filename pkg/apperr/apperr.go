// Package apperr defines the error kinds surfaced by larder services.
//
// Services return *Error values for conditions the caller should see
// (forbidden, not a member, conflict, ...). Anything else is treated as an
// internal failure by the HTTP layer and reported as "operation failed".
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	Unauthenticated  Kind = "unauthenticated"
	Forbidden        Kind = "forbidden"
	SelfModification Kind = "self_modification"
	UnknownUser      Kind = "unknown_user"
	NotAMember       Kind = "not_a_member"
	Conflict         Kind = "conflict"
	UpstreamFailure  Kind = "upstream_failure"
	Invalid          Kind = "invalid"
	NotFound         Kind = "not_found"
	QuotaExceeded    Kind = "quota_exceeded"
	Internal         Kind = "internal"
)

// Error is a classified error with a caller-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind. The message is what callers see; the
// cause is kept for logging only.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// Message returns the caller-safe message for err
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != Internal {
		return appErr.Message
	}
	return "operation failed"
}
