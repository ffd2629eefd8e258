// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package gate

import "errors"

// ErrorKind identifies a kind of error that can be used to define new errors
// via const SomeError = gate.ErrorKind("something").
type ErrorKind string

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// The kinds of errors that can terminate an action request. The messages of
// ErrUnknownAction, ErrInsufficientFee and ErrInvalidSourceAddress are
// returned to callers as-is.
const (
	ErrUnknownAction        = ErrorKind("Unknown action.")
	ErrMissingParameter     = ErrorKind("missing parameter")
	ErrInvalidNumericValue  = ErrorKind("invalid numeric value")
	ErrInsufficientFee      = ErrorKind("Fee provided less than minimum necessary for acceptance in a block.")
	ErrInvalidSourceAddress = ErrorKind("Invalid source address")
	ErrCompositionFailure   = ErrorKind("composition failed")
	ErrRemoteUnavailable    = ErrorKind("composer peer unavailable")
	ErrSigningFailure       = ErrorKind("signing failed")
	ErrBroadcastFailure     = ErrorKind("broadcast failed")
)

// kinds is used by KindOf to classify an error.
var kinds = []ErrorKind{
	ErrUnknownAction,
	ErrMissingParameter,
	ErrInvalidNumericValue,
	ErrInsufficientFee,
	ErrInvalidSourceAddress,
	ErrCompositionFailure,
	ErrRemoteUnavailable,
	ErrSigningFailure,
	ErrBroadcastFailure,
}

// Error pairs an error with details.
type Error struct {
	wrapped error
	detail  string
}

// Error satisfies the error interface, combining the wrapped error message with
// the details.
func (e Error) Error() string {
	return e.wrapped.Error() + ": " + e.detail
}

// Unwrap returns the wrapped error, allowing errors.Is and errors.As to work.
func (e Error) Unwrap() error {
	return e.wrapped
}

// Detail is the detail message without the wrapped error's text.
func (e Error) Detail() string {
	return e.detail
}

// NewError wraps the provided Error with details in a Error, facilitating the
// use of errors.Is and errors.As via errors.Unwrap.
func NewError(err error, detail string) Error {
	return Error{
		wrapped: err,
		detail:  detail,
	}
}

// KindOf returns the ErrorKind of err, or the empty ErrorKind if err is not
// one of the known kinds.
func KindOf(err error) ErrorKind {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ""
}
