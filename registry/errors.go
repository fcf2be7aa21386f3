package registry

import (
	"errors"

	"xdao.co/oeuvre/model"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	KindInvalidInput       Kind = "InvalidInput"
	KindNotFound           Kind = "NotFound"
	KindUnauthorized       Kind = "Unauthorized"
	KindWindowClosed       Kind = "WindowClosed"
	KindNotIndexed         Kind = "NotIndexed"
	KindInvariantViolation Kind = "InvariantViolation"
	KindResourceExhausted  Kind = "ResourceExhausted"
)

// Error is the registry's structured error type.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind Kind, msg string, cause error) error {
	if cause == nil {
		return newError(kind, msg)
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the Kind of a structured error, or "" if unknown.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// Fatal reports whether err signals broken internal bookkeeping. Such errors
// never occur under correct usage and are not recoverable.
func Fatal(err error) bool {
	switch KindOf(err) {
	case KindNotIndexed, KindInvariantViolation:
		return true
	default:
		return false
	}
}

// Code maps err to the stable boundary error code.
func Code(err error) model.ErrorCode {
	switch KindOf(err) {
	case KindInvalidInput:
		return model.ErrInvalidInput
	case KindNotFound:
		return model.ErrNotFound
	case KindUnauthorized:
		return model.ErrUnauthorized
	case KindWindowClosed:
		return model.ErrWindowClosed
	case KindNotIndexed:
		return model.ErrNotIndexed
	case KindInvariantViolation:
		return model.ErrInvariantViolation
	case KindResourceExhausted:
		return model.ErrResourceExhausted
	default:
		return model.ErrInternal
	}
}

// Coded converts err into a model.CodedError for API layers.
func Coded(err error) *model.CodedError {
	if err == nil {
		return nil
	}
	return model.NewError(Code(err), err.Error())
}
