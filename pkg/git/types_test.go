package git

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gohops/pkg/operation"
)

func TestOpExecution_Outcome(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name string
		op   OpExecution
		want operation.Outcome
	}{
		{name: "running", op: OpExecution{State: StateRunning}, want: operation.Unknown},
		{name: "unknown token keeps polling", op: OpExecution{State: "Queued"}, want: operation.Unknown},
		{name: "success state", op: OpExecution{State: StateSuccess}, want: operation.Succeeded},
		{name: "killed", op: OpExecution{State: StateKilled}, want: operation.Failed},
		{name: "timed out", op: OpExecution{State: StateTimedout}, want: operation.Failed},
		{name: "explicit flag wins", op: OpExecution{State: StateFailed, Success: &yes}, want: operation.Succeeded},
		{name: "explicit failure", op: OpExecution{State: StateRunning, Success: &no}, want: operation.Failed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Outcome())
		})
	}
}

func TestOpExecution_UnmarshalJSON(t *testing.T) {
	var op OpExecution
	err := json.Unmarshal([]byte(`{
		"id": 42,
		"state": "Running",
		"submissionTime": 1700000000000,
		"repository": {"id": 3, "name": "r", "path": "/Projects/demo/r"}
	}`), &op)
	require.NoError(t, err)

	assert.Equal(t, 42, op.ID)
	assert.Equal(t, 3, op.RepoID())
	assert.Nil(t, op.Success)
	assert.Equal(t, int64(1700000000000), op.SubmittedAt.UnixMilli())
	assert.True(t, op.StoppedAt.IsZero())
	assert.True(t, op.Is(OpExecution{ID: 42, State: StateSuccess}))
}

func TestParseStatus(t *testing.T) {
	p, err := ParseStatus(`{"status": []}`)
	require.NoError(t, err)
	assert.True(t, p.IsMany())
	assert.Empty(t, p.Files())

	p, err = ParseStatus(`{"status": "clean"}`)
	require.NoError(t, err)
	assert.False(t, p.IsMany())
	assert.Equal(t, "clean", p.Single.Status)

	_, err = ParseStatus(`not json`)
	assert.Error(t, err)

	_, err = ParseStatus(`{"status": 12}`)
	assert.Error(t, err)
}

func TestSelectFiles(t *testing.T) {
	entries := []FileStatus{
		{File: "notebooks/a.ipynb", Status: "MODIFIED"},
		{File: "src/pkg/b.py", Status: "MODIFIED"},
		{File: "README.md", Status: "UNTRACKED"},
		{File: "src/pkg/b.py", Status: "MODIFIED"},
		{Status: "clean"},
	}

	got, err := SelectFiles(entries, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"notebooks/a.ipynb", "src/pkg/b.py", "README.md"}, got)

	got, err = SelectFiles(entries, []string{"**/*.py", "*.md"})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/pkg/b.py", "README.md"}, got)

	_, err = SelectFiles(entries, []string{"[unterminated"})
	assert.Error(t, err)
}
