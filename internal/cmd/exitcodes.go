package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/gohops/internal/observability"
)

// Exit codes of platform outcomes. Argument, file, service and signal
// failures use the foundry catalog.
const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitOperationFailed = 10
	ExitNotFound        = 11
	ExitConfigError     = 78
)

// ExitError carries the exit code a command failed with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return foundry.ExitSignalInt
	}
	return ExitFailure
}

// ReportError logs err the way the CLI presents failures.
func ReportError(err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fields := []zap.Field{zap.Int("exit_code", exitErr.Code)}
		if exitErr.Err != nil {
			fields = append(fields, zap.Error(exitErr.Err))
		}
		observability.CLILogger.Error(exitErr.Message, fields...)
		return
	}
	observability.CLILogger.Error("Command failed", zap.Error(err))
}
