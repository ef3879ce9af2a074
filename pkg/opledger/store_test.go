package opledger

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gohops/pkg/operation"
)

func TestStore_WriteGetRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	now := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	rec := &Record{
		ID:         "op-1",
		Kind:       operation.KindExecution,
		Status:     StatusSucceeded,
		RemoteID:   "42",
		Name:       "etl",
		Action:     "run",
		State:      "FINISHED",
		CreatedAt:  now,
		EndedAt:    &now,
		StdoutPath: "/Projects/demo/Logs/stdout.log",
	}
	require.NoError(t, s.Write(rec))

	got, err := s.Get("op-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = os.Stat(s.RecordPath("op-1"))
	require.NoError(t, err)
}

func TestStore_GetMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Get("nope")
	assert.True(t, operation.IsNotFound(err))
}

func TestStore_ListSortsNewestFirst(t *testing.T) {
	s := NewStore(t.TempDir())

	t1 := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 19, 13, 0, 0, 0, time.UTC)
	require.NoError(t, s.Write(&Record{ID: "op-1", Status: StatusRunning, CreatedAt: t1}))
	require.NoError(t, s.Write(&Record{ID: "op-2", Status: StatusRunning, CreatedAt: t2}))

	got, err := s.List()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "op-2", got[0].ID)
}

func TestStore_ListEmptyRoot(t *testing.T) {
	s := NewStore(t.TempDir() + "/missing")
	got, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_Resolve(t *testing.T) {
	s := NewStore(t.TempDir())
	now := time.Now().UTC()
	for _, id := range []string{"abc123", "abd456", "xyz789"} {
		require.NoError(t, s.Write(&Record{ID: id, Status: StatusRunning, CreatedAt: now}))
	}

	id, err := s.Resolve("abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	id, err = s.Resolve("xy")
	require.NoError(t, err)
	assert.Equal(t, "xyz789", id)

	_, err = s.Resolve("ab")
	assert.True(t, errors.Is(err, operation.ErrAmbiguous))

	_, err = s.Resolve("q")
	assert.True(t, operation.IsNotFound(err))
}

func TestStore_GC(t *testing.T) {
	s := NewStore(t.TempDir())
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-30 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	require.NoError(t, s.Write(&Record{ID: "old-done", Status: StatusSucceeded, CreatedAt: old, EndedAt: &old}))
	require.NoError(t, s.Write(&Record{ID: "old-running", Status: StatusRunning, CreatedAt: old}))
	require.NoError(t, s.Write(&Record{ID: "recent-failed", Status: StatusFailed, CreatedAt: recent, EndedAt: &recent}))

	res, err := s.GC(7*24*time.Hour, now, true)
	require.NoError(t, err)
	assert.Equal(t, GCResult{WouldDelete: 1, DryRun: true}, res)

	res, err = s.GC(7*24*time.Hour, now, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	left, err := s.List()
	require.NoError(t, err)
	ids := []string{left[0].ID, left[1].ID}
	assert.ElementsMatch(t, []string{"old-running", "recent-failed"}, ids)

	_, err = s.GC(0, now, false)
	assert.Error(t, err)
}

func TestRecordFinish(t *testing.T) {
	r := NewRecord(operation.KindGit, " notebooks ", "push")
	assert.Equal(t, StatusRunning, r.Status)
	assert.Equal(t, "notebooks", r.Name)
	assert.Len(t, r.ID, 36)

	r.Finish(operation.Unknown, "Running", errors.New("connection reset"))
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "connection reset", r.Error)
	require.NotNil(t, r.EndedAt)

	ok := NewRecord(operation.KindExecution, "etl", "run")
	ok.Finish(operation.Succeeded, "FINISHED", nil)
	assert.Equal(t, StatusSucceeded, ok.Status)
	assert.Empty(t, ok.Error)
}
