// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for allot.
// Every operation boundary returns an *AllotError so callers can branch on Code.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies allot errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates malformed shapes, out-of-range indices,
	// unknown agent or role names, or missing required fields.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeDataUnavailable indicates the reference table is missing or unreadable.
	CodeDataUnavailable ErrorCode = "DATA_UNAVAILABLE"

	// CodeInfeasible indicates no assignment satisfies the constraints.
	CodeInfeasible ErrorCode = "INFEASIBLE"

	// CodeNoCandidate indicates the swapper found no idle agent to take over.
	CodeNoCandidate ErrorCode = "NO_CANDIDATE"

	// CodeSolverTimeout indicates the solve exceeded its time budget.
	CodeSolverTimeout ErrorCode = "SOLVER_TIMEOUT"

	// CodeNotFound indicates a resource (such as a session) was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// AllotError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type AllotError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
	StatusCode  int // HTTP status used by the transports
}

// Error implements the error interface.
func (e *AllotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *AllotError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *AllotError) MarshalJSON() ([]byte, error) {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Err:         cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	})
}

// New creates a new AllotError with the given code, message, and cause.
// Timeouts and data outages start out recoverable since a retry may succeed.
func New(code ErrorCode, msg string, cause error) *AllotError {
	return &AllotError{
		Code:        code,
		Message:     msg,
		Err:         cause,
		Context:     make(map[string]interface{}),
		Recoverable: code == CodeSolverTimeout || code == CodeDataUnavailable,
		StatusCode:  codeToStatusCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *AllotError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *AllotError) WithContext(key string, value interface{}) *AllotError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *AllotError) WithRecoverable(recoverable bool) *AllotError {
	e.Recoverable = recoverable
	return e
}

// AsAllotError attempts to convert an error to an AllotError.
// Returns the error as AllotError if one is found in the chain, or wraps it otherwise.
func AsAllotError(err error) *AllotError {
	if err == nil {
		return nil
	}
	var ae *AllotError
	if stderrors.As(err, &ae) {
		return ae
	}
	return New(CodeInternal, "wrapped error", err)
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var ae *AllotError
	if !stderrors.As(err, &ae) {
		return false
	}
	return ae.Code == code
}

// CodeOf returns the code carried by err, or CodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsAllotError(err).Code
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *AllotError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeInvalidInput:
		return 400
	case CodeInfeasible, CodeNoCandidate:
		return 422
	case CodeSolverTimeout:
		return 504
	case CodeDataUnavailable:
		return 503
	default:
		return 500
	}
}
