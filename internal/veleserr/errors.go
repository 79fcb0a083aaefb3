// Package veleserr defines the closed set of error kinds surfaced across the
// engine, so callers can switch on a stable Kind instead of matching strings.
package veleserr

import "fmt"

// Kind is a stable error classification surfaced to callers of the core API.
type Kind string

const (
	DimensionMismatch Kind = "DimensionMismatch"
	NotFound          Kind = "NotFound"
	Conflict          Kind = "Conflict"
	IndexOverflow     Kind = "IndexOverflow"
	MissingEndpoint   Kind = "MissingEndpoint"
	LabelTableFull    Kind = "LabelTableFull"
	QuotaExceeded     Kind = "QuotaExceeded"
	Cancelled         Kind = "Cancelled"
	Corruption        Kind = "Corruption"
	IOError           Kind = "IOError"
)

// Error wraps an underlying cause with a stable Kind. Never used for
// ordinary control flow inside the engine; only at API boundaries where the
// caller needs to branch on failure category.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, veleserr.Sentinel(veleserr.DimensionMismatch))
// style checks work by comparing Kind against a bare sentinel (see Sentinel).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Cause == nil && t.Kind == e.Kind
}

// New constructs an *Error with the given kind and message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error with the given kind, message, and cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Sentinel returns a bare marker for the given kind, suitable as the target
// of errors.Is(err, Sentinel(NotFound)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
