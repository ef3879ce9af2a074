package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "exit error", err: exitError(ExitNotFound, "missing", nil), want: ExitNotFound},
		{name: "wrapped exit error", err: fmt.Errorf("run: %w", exitError(ExitOperationFailed, "failed", nil)), want: ExitOperationFailed},
		{name: "canceled", err: fmt.Errorf("wait: %w", context.Canceled), want: foundry.ExitSignalInt},
		{name: "plain error", err: errors.New("boom"), want: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("connection refused")
	err := exitError(foundry.ExitExternalServiceUnavailable, "Failed to open project", cause)

	assert.Equal(t, "Failed to open project: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Ledger directory is not configured", exitError(ExitConfigError, "Ledger directory is not configured", nil).Error())
}
