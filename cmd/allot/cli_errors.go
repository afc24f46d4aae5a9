// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/jllopis/allot/pkg/errors"
)

// CLIError wraps AllotError with a hint for the terminal.
type CLIError struct {
	*errors.AllotError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(ae *errors.AllotError, hint string) *CLIError {
	return &CLIError{AllotError: ae, Hint: hint}
}

// Error returns the message followed by the hint.
func (e *CLIError) Error() string {
	if e.AllotError == nil {
		return "unknown error"
	}
	msg := e.AllotError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the AllotError to errors.As.
func (e *CLIError) Unwrap() error { return e.AllotError }

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	ae := errors.AsAllotError(err)
	if ae.Code != errors.CodeInvalidInput {
		ae = errors.New(errors.CodeInvalidInput, "configuration error", err)
	}
	ae.WithContext("config_path", configPath)
	hint := "check the --set overrides and ALLOT_* environment variables"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(ae, hint)
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	ae := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg)
	return NewCLIError(ae, "run 'allot help' for usage information")
}

// hintFor suggests a next step for errors returned by the service.
func hintFor(code errors.ErrorCode) string {
	switch code {
	case errors.CodeDataUnavailable:
		return "set reference.path (or --reference) to a readable CSV, YAML, TOML or SQLite table"
	case errors.CodeInfeasible:
		return "lower role_demand, raise agent capacity or raise max_agents"
	case errors.CodeNoCandidate:
		return "every agent is busy, or the named agent holds no role"
	case errors.CodeSolverTimeout:
		return "raise solver.timeout or solver.node_limit"
	case errors.CodeNotFound:
		return "sessions expire after session.ttl; solve again to get a new id"
	default:
		return ""
	}
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeDataUnavailable:
		return "Data Unavailable"
	case errors.CodeInfeasible:
		return "Infeasible"
	case errors.CodeNoCandidate:
		return "No Candidate"
	case errors.CodeSolverTimeout:
		return "Solver Timeout"
	case errors.CodeNotFound:
		return "Not Found"
	default:
		return string(code)
	}
}

func printError(w io.Writer, err error, asJSON bool) {
	var cliErr *CLIError
	if !stderrors.As(err, &cliErr) {
		ae := errors.AsAllotError(err)
		cliErr = NewCLIError(ae, hintFor(ae.Code))
	}
	if asJSON {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":        cliErr.Code,
				"message":     cliErr.Message,
				"hint":        cliErr.Hint,
				"recoverable": cliErr.Recoverable,
			},
		})
		return
	}
	red := color.New(color.FgRed, color.Bold)
	fmt.Fprintf(w, "%s [%s]: %s\n", red.Sprint("Error"), FormatErrorCode(cliErr.Code), cliErr.Message)
	if cliErr.Err != nil {
		fmt.Fprintf(w, "  Cause: %v\n", cliErr.Err)
	}
	if cliErr.Hint != "" {
		fmt.Fprintf(w, "  %s %s\n", color.YellowString("Hint:"), cliErr.Hint)
	}
}
