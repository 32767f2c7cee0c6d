// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes shared by the stratchat commands.
//
// Handlers return errors; only the Handle* entry points print them and exit.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/stratchat/internal/backend"
	"github.com/jeranaias/stratchat/internal/config"
	"github.com/jeranaias/stratchat/internal/storage"
	"github.com/jeranaias/stratchat/internal/turn"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates a configuration file or settings error
	ExitConfigError = 3
	// ExitBackendError indicates the backtest service or exchange failed
	ExitBackendError = 5
	// ExitNotFoundError indicates a session was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError is a malformed command line.
type UsageError struct {
	Msg   string
	Usage string // optional usage line shown below the message
}

func (e *UsageError) Error() string {
	if e.Usage != "" {
		return fmt.Sprintf("%s\nUsage: %s", e.Msg, e.Usage)
	}
	return e.Msg
}

// ValidationError is a flag or argument with a bad value.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// CommandError wraps a failure with the command and action that caused it.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ErrTurnFailed is returned when a turn ended with an error message in the
// conversation rather than a result.
var ErrTurnFailed = errors.New("turn ended with an error")

// =============================================================================
// HELPERS
// =============================================================================

// wrapErr attaches command context to err. nil stays nil.
func wrapErr(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var validationErr *ValidationError
	var apiErr *backend.APIError
	var respErr *backend.ValidationError
	var cfgErr config.ValidationError
	var cfgErrs config.ValidateErrors

	switch {
	case errors.As(err, &usageErr), errors.As(err, &validationErr),
		errors.Is(err, turn.ErrEmptyInput), errors.Is(err, turn.ErrNoCode):
		return ExitUsageError
	case errors.As(err, &cfgErr), errors.As(err, &cfgErrs):
		return ExitConfigError
	case errors.Is(err, storage.ErrSessionNotFound), errors.Is(err, storage.ErrAmbiguousID):
		return ExitNotFoundError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &apiErr), errors.As(err, &respErr), errors.Is(err, ErrTurnFailed):
		return ExitBackendError
	}
	return ExitGeneralError
}

// exitOnError prints err and exits with its code. nil returns normally.
func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(stderr, ErrorStyle.Render("Error:"), err)
	os.Exit(GetExitCode(err))
}
