// Package domainerrors provides coded errors for the engine's failure
// taxonomy. Services construct these (or wrap store sentinels into them);
// the HTTP layer translates codes into status codes and response bodies.
//
// Codes are part of the API contract: clients dispatch on them, so renaming
// a code is a breaking change.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"

	// Form lifecycle failures.
	CodeValidationFailed Code = "validation_failed"
	CodeIncompleteForm   Code = "incomplete_form"
	CodeFormLocked       Code = "form_locked"
	CodeAlreadySubmitted Code = "already_submitted"

	// Document registry failures.
	CodeAlreadyApproved Code = "already_approved"
	CodeImmutable       Code = "immutable"
)

// Violation reports a single failing field path with a human-readable
// reason. ValidationFailed and IncompleteForm errors carry the full list so
// clients can render every outstanding item at once.
type Violation struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Error is a coded domain error. The zero value is not valid; construct via
// New or Wrap.
type Error struct {
	Code       Code
	Message    string
	Violations []Violation
	// Completion carries the form's completion percentage on
	// IncompleteForm errors; -1 when not applicable.
	Completion int

	err error
}

// New constructs a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Completion: -1}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is / errors.As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Completion: -1, err: err}
}

// WithViolations returns a copy of e carrying the given violations.
func (e *Error) WithViolations(violations []Violation) *Error {
	clone := *e
	clone.Violations = violations
	return &clone
}

// WithCompletion returns a copy of e carrying a completion percentage.
func (e *Error) WithCompletion(pct int) *Error {
	clone := *e
	clone.Completion = pct
	return &clone
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// Is makes errors.Is(err, dErrors.New(code, ...)) match on code alone.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// HasCode reports whether err (or anything it wraps) is a domain error with
// the given code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}

// Is is a readable alias for HasCode, matching call sites like
// dErrors.Is(err, dErrors.CodeNotFound).
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// From extracts the outermost domain error from err's chain.
func From(err error) (*Error, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}
