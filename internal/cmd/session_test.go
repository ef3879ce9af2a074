package cmd

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/gohops/pkg/client"
	"github.com/3leaps/gohops/pkg/dataset"
	"github.com/3leaps/gohops/pkg/git"
	"github.com/3leaps/gohops/pkg/opledger"
	"github.com/3leaps/gohops/pkg/operation"
)

func TestRecordGit(t *testing.T) {
	store := opledger.NewStore(t.TempDir())
	s := &session{log: zap.NewNop(), ledger: store}
	submitted := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	s.recordGit(git.ActionCommit, git.OpExecution{
		ID:          42,
		State:       git.StateSuccess,
		SubmittedAt: submitted,
		Repository:  &git.Repo{ID: 7, Name: "feature-pipelines"},
	}, nil)
	s.recordGit(git.ActionPush, git.OpExecution{ID: 43, State: git.StateRunning},
		fmt.Errorf("refresh: %w", errors.New("connection reset")))

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)

	byRemote := map[string]opledger.Record{}
	for _, r := range records {
		byRemote[r.RemoteID] = r
	}

	commit := byRemote["42"]
	assert.Equal(t, operation.KindGit, commit.Kind)
	assert.Equal(t, "COMMIT", commit.Action)
	assert.Equal(t, "feature-pipelines", commit.Name)
	assert.Equal(t, opledger.StatusSucceeded, commit.Status)
	assert.True(t, submitted.Equal(commit.CreatedAt))

	push := byRemote["43"]
	assert.Equal(t, opledger.StatusFailed, push.Status, "an error with no outcome fails the record")
	assert.Contains(t, push.Error, "connection reset")
}

func TestPlatformError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "platform 404",
			err:  &client.RestAPIError{StatusCode: 404},
			want: ExitNotFound,
		},
		{
			name: "lookup without match",
			err:  fmt.Errorf("repo: %w", operation.ErrNotFound),
			want: ExitNotFound,
		},
		{
			name: "missing dataset path",
			err:  fmt.Errorf("get: %w", dataset.ErrNotFound),
			want: ExitNotFound,
		},
		{
			name: "remote failure",
			err:  operation.Wrap(operation.KindGit, "commit", "3", operation.ErrFailed),
			want: ExitOperationFailed,
		},
		{
			name: "platform rejection",
			err:  &client.RestAPIError{StatusCode: 400},
			want: ExitFailure,
		},
		{
			name: "transport",
			err:  errors.New("dial tcp: connection refused"),
			want: foundry.ExitExternalServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(platformError("failed", tt.err)))
		})
	}
}
