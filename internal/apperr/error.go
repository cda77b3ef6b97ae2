// ABOUTME: Error value carrying a Kind, a display message and an optional cause
// ABOUTME: Constructors per kind plus From for mapping arbitrary errors

package apperr

import (
	"errors"
	"strings"
)

// Error is a taxonomy failure. Message is safe to show to clients; Err is the
// internal cause and is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.Name() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.Name() + ": " + e.Message
}

// Unwrap returns the internal cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, apperr.WrongLogin()) matches any wrong-login failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Status returns the HTTP status of the error's kind.
func (e *Error) Status() int {
	return e.Kind.Status()
}

// New creates an error of the given kind with the kind's default message.
func New(kind Kind) *Error {
	return &Error{Kind: kind, Message: kind.DefaultMessage()}
}

// Wrap creates an error of the given kind around an internal cause.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: kind.DefaultMessage(), Err: err}
}

// Validation reports field-level input rejection. Fields are listed in the
// message in the order given.
func Validation(fields ...string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: KindValidation.DefaultMessage() + strings.Join(fields, "; "),
	}
}

// Unauthorized is a gateway rejection with a specific message.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func BadClientData() *Error     { return New(KindBadClientData) }
func WrongLogin() *Error        { return New(KindWrongLogin) }
func NotFound() *Error          { return New(KindNotFound) }
func Internal(err error) *Error { return Wrap(KindInternal, err) }

// From maps any error onto the taxonomy. Errors that are not already an
// *Error become internal errors.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// KindOf returns the kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
