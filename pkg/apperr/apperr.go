// Package apperr defines the failure taxonomy shared by the session boundary
// and the mutation gateway.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is raised by local validation; the backend is never
	// contacted.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is raised when the identity service rejects the
	// supplied email and password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthRequired is raised when an operation needs a signed in admin.
	ErrAuthRequired = errors.New("authentication required")
	// ErrLockedState is raised for an illegal status transition.
	ErrLockedState = errors.New("locked state")
	// ErrEmptyInput is raised when reply text is blank.
	ErrEmptyInput = errors.New("empty input")
	// ErrAssetUnavailable is raised when a stored object cannot be resolved
	// to a signed URL.
	ErrAssetUnavailable = errors.New("asset unavailable")
	// ErrNetworkFailure wraps any other backend call failure.
	ErrNetworkFailure = errors.New("network failure")

	// ErrUpdatePending is returned when a mutation for the same record is
	// already in flight.
	ErrUpdatePending = errors.New("update already pending")
	// ErrDeclined is returned when the user refuses a confirmation prompt.
	// It is an outcome, not a failure.
	ErrDeclined = errors.New("declined")
)

// Error carries the operation, the taxonomy kind and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

// New builds an Error without an underlying cause.
func New(op string, kind error, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Wrap builds an Error around cause.
func Wrap(op string, kind error, cause error, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Message returns the user facing text of err: the Msg of the outermost
// *Error when present, otherwise err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Msg != "" {
		return ae.Msg
	}
	return err.Error()
}

// KindOf reports which taxonomy sentinel err belongs to, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrInvalidInput,
		ErrInvalidCredentials,
		ErrAuthRequired,
		ErrLockedState,
		ErrEmptyInput,
		ErrAssetUnavailable,
		ErrNetworkFailure,
		ErrUpdatePending,
		ErrDeclined,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
