// Package apperr defines the error kinds returned by the membership workflows.
//
// Every failure leaving an orchestrator is an *Error carrying a stable Kind.
// Validation, auth, conflict and not-found errors are safe to show to callers;
// payment and storage errors are internal and must be logged, not echoed.
package apperr

import "errors"

// Kind is the machine-readable error category.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindAuth       Kind = "auth_error"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindPayment    Kind = "payment_error"
	KindStorage    Kind = "storage_error"
	KindDelivery   Kind = "delivery_error"
	KindInternal   Kind = "internal_error"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "register"
	Message string // caller-facing message
	Details any    // optional structured details (validation violations)
	Err     error  // underlying cause
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindConflict}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// Public reports whether the kind may be shown verbatim to callers.
func (k Kind) Public() bool {
	switch k {
	case KindValidation, KindAuth, KindConflict, KindNotFound:
		return true
	}
	return false
}

// Validation reports bad input. details is usually validation.Violations.
func Validation(op, msg string, details any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: msg, Details: details}
}

// Auth reports an invalid or expired identity assertion.
func Auth(op string, err error) *Error {
	return &Error{Kind: KindAuth, Op: op, Message: "invalid identity token", Err: err}
}

// Conflict reports a duplicate email, identity binding or check-in.
func Conflict(op, msg string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: msg}
}

// NotFound reports an unresolved user, store or visit.
func NotFound(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: msg}
}

// Payment reports a payment provider rejection or outage.
func Payment(op string, err error) *Error {
	return &Error{Kind: KindPayment, Op: op, Message: "payment provider failure", Err: err}
}

// Storage reports a persistence failure.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Message: "storage failure", Err: err}
}

// Delivery reports a notification failure. Never fatal.
func Delivery(op string, err error) *Error {
	return &Error{Kind: KindDelivery, Op: op, Message: "delivery failure", Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Public returns the kind, message and details safe to expose.
// Internal kinds collapse to a generic internal failure.
func Public(err error) (Kind, string, any) {
	var e *Error
	if errors.As(err, &e) && e.Kind.Public() {
		return e.Kind, e.Message, e.Details
	}
	return KindInternal, "internal error", nil
}
