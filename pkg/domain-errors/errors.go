// Package domainerrors carries the tagged error variants that services return.
// Transport adapters map codes to status codes; services never do.
package domainerrors

import (
	"errors"
)

// Code identifies a class of failure independent of transport.
type Code string

const (
	CodeUnauthorized       Code = "unauthorized"
	CodeConfiguration      Code = "configuration_error"
	CodeAlreadyVerified    Code = "already_verified"
	CodeMissingFields      Code = "missing_fields"
	CodeInvalidFormat      Code = "invalid_format"
	CodeInvalidSession     Code = "invalid_session"
	CodeNullifierUsed      Code = "nullifier_already_used"
	CodeVerificationFailed Code = "verification_failed"
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Error is a domain error with a stable code and a client-safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code and message, so tests can use
// errors.Is against a freshly constructed value.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in err's chain is a domain error with code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of the first domain error in the chain, or
// CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the client-safe message of the first domain error in the chain.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
