// ABOUTME: Tagged error values for controller operations
// ABOUTME: Carries an error kind plus a user-displayable reason and wrapped cause

package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure. Validation, Unauthorized and
// NotFound are detected locally before any store call; Store wraps a failed
// asynchronous store operation.
type Kind string

const (
	Validation   Kind = "validation"
	Unauthorized Kind = "unauthorized"
	NotFound     Kind = "not_found"
	Store        Kind = "store"
)

// Error is a tagged operation failure. Reason is a short, user-displayable
// description; Err optionally carries the underlying cause for Store kinds.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "message.send"
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validationf builds a Validation error with a formatted reason.
func Validationf(op, format string, args ...any) *Error {
	return &Error{Kind: Validation, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Unauthorizedf builds an Unauthorized error with a formatted reason.
func Unauthorizedf(op, format string, args ...any) *Error {
	return &Error{Kind: Unauthorized, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NotFound error with a formatted reason.
func NotFoundf(op, format string, args ...any) *Error {
	return &Error{Kind: NotFound, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Storef wraps a store failure, keeping the underlying error reachable via
// errors.Unwrap.
func Storef(op string, err error, format string, args ...any) *Error {
	return &Error{Kind: Store, Op: op, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) a fault.Error, or ""
// otherwise.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err is (or wraps) a fault.Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
