// Package domainerrors carries coded domain errors across layer boundaries.
//
// Services return errors built with New or Wrap; callers branch on the Code
// (HasCode, CodeOf) and on the user-facing Action, never on message text.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeValidation         Code = "validation"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvalidDateRange   Code = "invalid_date_range"
	CodeNotFound           Code = "not_found"
	CodeForbidden          Code = "forbidden"
	CodeConflict           Code = "conflict"
	CodeOverlap            Code = "overlap"
	CodeIllegalTransition  Code = "illegal_transition"
	CodeStale              Code = "stale"
	CodeNotCancellable     Code = "not_cancellable"
	CodeInvalidProof       Code = "invalid_proof"
	CodeExpired            Code = "expired"
	CodeRejected           Code = "rejected"
	CodeUnavailable        Code = "unavailable"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Action is what the surrounding application should offer the user.
type Action string

const (
	ActionRetry          Action = "retry"
	ActionContactSupport Action = "contact_support"
	ActionInvalidRequest Action = "invalid_request"
)

// Error is a coded domain error. Err, when set, is the wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to err. A nil err yields nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost code in err's chain, or "" if none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HasCode reports whether the outermost coded error in err's chain has code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// ActionFor maps an error onto the action offered to the user.
func ActionFor(err error) Action {
	switch CodeOf(err) {
	case CodeStale, CodeUnavailable, CodeTimeout:
		return ActionRetry
	case CodeInternal, CodeInvariantViolation, "":
		return ActionContactSupport
	default:
		return ActionInvalidRequest
	}
}

// IsRetryable reports whether retrying the same call with fresh state may succeed.
func IsRetryable(err error) bool {
	return err != nil && ActionFor(err) == ActionRetry
}
