// Package errs provides the unified error type used across all of rowbridge.
//
// Every backend (postgres, mysql, sqlite, minio, …) wraps its native errors
// into *errs.Error before returning them. The bridge never returns any other
// error type, so callers can branch on the Is* predicates without importing
// driver packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindQueryFailed, "prepare failed", pgErr)
//
//	// In the host, check the error kind:
//	if errs.IsConnectionFailed(err) {
//	    // surface "database unreachable" to the user
//	}
package errs

import (
	"context"
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing backend-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindConnectionFailed         // cannot reach or authenticate to the backend
	ErrKindQueryFailed              // SQL rejected, failed to execute, or failed mid-iteration
	ErrKindInstantiation            // record type unknown or record construction failed
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindLimitExceeded            // result larger than the configured row cap
	ErrKindNotFound                 // object or bucket does not exist
	ErrKindPermissionDenied         // credentials valid but not allowed
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInstantiation:
		return "instantiation_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindLimitExceeded:
		return "limit_exceeded"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all rowbridge subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Ensure returns err unchanged when it already carries an *Error in its
// chain, and otherwise wraps it with the fallback kind. A context
// cancellation or deadline always becomes ErrKindTimeout.
func Ensure(err error, fallback ErrKind, msg string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(ErrKindTimeout, msg, err)
	}
	return Wrap(fallback, msg, err)
}

// --- Predicates ---

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a SQL execution failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInstantiation reports whether a record could not be created.
func IsInstantiation(err error) bool {
	return KindOf(err) == ErrKindInstantiation
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsLimitExceeded reports whether a read was aborted by the row cap.
func IsLimitExceeded(err error) bool {
	return KindOf(err) == ErrKindLimitExceeded
}

// IsNotFound reports whether the requested object or bucket is missing.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsPermissionDenied reports whether the backend refused the operation.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// KindOf extracts the ErrKind from the outermost *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
