package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable category of a pipeline error.
type ErrorKind string

const (
	KindRateLimited              ErrorKind = "RateLimited"
	KindParseTimeout             ErrorKind = "ParseTimeout"
	KindParseInvalid             ErrorKind = "ParseInvalid"
	KindNoCandidates             ErrorKind = "NoCandidates"
	KindAmbiguousSelection       ErrorKind = "AmbiguousSelection"
	KindConfirmationMismatch     ErrorKind = "ConfirmationMismatch"
	KindExecutionFailed          ErrorKind = "ExecutionFailed"
	KindTenantIsolationViolation ErrorKind = "TenantIsolationViolation"
	KindInvalidRequest           ErrorKind = "InvalidRequest"
	KindUnauthenticated          ErrorKind = "Unauthenticated"
	KindInternal                 ErrorKind = "Internal"
)

// Error is a pipeline error carrying a kind and a caller-safe message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal if err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
