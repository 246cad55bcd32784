package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is a coded error carried through validation results. Codes follow
// the SQLSTATE layout; class PV holds the plan-validation codes.
type Error struct {
	Code     string // SQLSTATE-style code
	Message  string // Primary error message
	Detail   string // Optional detailed error message
	Hint     string // Optional hint message
	Position int    // Character position in query (0 if not applicable)
	Where    string // Component or rule where the error occurred
	Cause    error  // Underlying error, if any
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Where != "" {
		msg = e.Where + ": " + msg
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s (SQLSTATE %s) DETAIL: %s", msg, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s (SQLSTATE %s)", msg, e.Code)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and message
func New(code string, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with a formatted message
func Newf(code string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error around cause.
func Wrap(cause error, code string, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithDetail adds detail to the error
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithDetailf adds formatted detail to the error
func (e *Error) WithDetailf(format string, args ...interface{}) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithHint adds a hint to the error
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithPosition sets the query position
func (e *Error) WithPosition(pos int) *Error {
	e.Position = pos
	return e
}

// WithWhere sets the context where the error occurred
func (e *Error) WithWhere(where string) *Error {
	e.Where = where
	return e
}

// WithCause records the underlying error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// IsError checks if err is, or wraps, an Error with a specific code
func IsError(err error, code string) bool {
	var pErr *Error
	return stderrors.As(err, &pErr) && pErr.Code == code
}

// GetError attempts to extract an Error from any error
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	var pErr *Error
	if stderrors.As(err, &pErr) {
		return pErr
	}
	// Wrap generic errors as internal errors
	return Wrap(err, InternalError, err.Error())
}
