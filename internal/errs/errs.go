// Package errs defines the engine's typed error vocabulary.
//
// Every engine-surfaced error carries a Kind (the six error-handling
// categories of the design) and a Code (the machine-readable string the
// HTTP boundary maps verbatim onto a response). Callers use errors.As to
// recover both; the Is and KindOf helpers cover the common checks.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation/retry policy purposes.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindPrecondition  Kind = "precondition"
	KindValidation    Kind = "validation"
	KindIntegrity     Kind = "integrity"
	KindStorage       Kind = "storage"
)

// Code values are the external error-code vocabulary from the boundary
// contract. They are stored verbatim so an HTTP layer needs no translation.
const (
	CodeNotFound           = "not_found"
	CodeNotAuthorized      = "not_authorized"
	CodeNotAuthenticated   = "not_authenticated"
	CodeTaskAlreadyDecided = "task_already_decided"
	CodeRequestDecided     = "request_already_decided"
	CodeNotEditable        = "not_editable"
	CodeInvalidWorkflow    = "invalid_workflow"
	CodeInvalidPayload     = "invalid_payload"
	CodeMissingFields      = "missing_fields"
	CodeInvalidDelegate    = "invalid_delegate"
	CodeInvalidKind        = "invalid_kind"
	CodeInvalidUserID      = "invalid_user_id"
)

// Error is the engine's concrete error type.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error. message may be empty, in which case Error() falls
// back to "<kind>: <code>".
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches kind/code to an underlying error.
func Wrap(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: err.Error(), Err: err}
}

func NotFound(code string) *Error {
	return New(KindNotFound, code, "")
}

func Unauthorized(code string) *Error {
	return New(KindAuthorization, code, "")
}

func Precondition(code, message string) *Error {
	return New(KindPrecondition, code, message)
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func Integrity(code, message string) *Error {
	return New(KindIntegrity, code, message)
}

func Storage(code string, err error) *Error {
	return Wrap(KindStorage, code, err)
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
