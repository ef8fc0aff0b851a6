// Package enginerr defines the error kinds shared by every core package.
//
// Every fallible operation in the engine returns one of these kinds, wrapped
// with context via fmt.Errorf("...: %w", err), so callers can branch on the
// kind with KindOf or errors.As without the core ever panicking as control
// flow.
package enginerr

import "fmt"

// Kind categorizes a core operation failure. See spec §7.
type Kind string

const (
	NotFound            Kind = "not_found"
	InvalidArgument     Kind = "invalid_argument"
	AlreadyExists       Kind = "already_exists"
	OutOfBounds         Kind = "out_of_bounds"
	Stale               Kind = "stale"
	SerializationFailed Kind = "serialization_failed"
	MigrationFailed     Kind = "migration_failed"
	QueueFull           Kind = "queue_full"
	PreconditionFailed  Kind = "precondition_failed"
)

// Error is the concrete error type returned by core operations.
type Error struct {
	Kind Kind
	Op   string // operation name, e.g. "PatternRuntime.removePattern"
	Msg  string
	Err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an *Error of the given kind. Error has no Is method, so
// errors.Is(err, enginerr.NotFound) style checks are not possible (Kind
// isn't an error) — use KindOf(err) == NotFound instead, or errors.As to
// pull out the *Error.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func Wrap(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, otherwise returns "".
func KindOf(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return ""
}

// as is a tiny local indirection over errors.As to avoid importing
// "errors" just for this one call site in every caller.
func as(err error, target **Error) bool {
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
