package git

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/gohops/pkg/client"
	"github.com/3leaps/gohops/pkg/operation"
	"github.com/3leaps/gohops/test/fakeplatform"
)

func noSleep(context.Context, time.Duration) error { return nil }

func execution(id int, state string, extra map[string]any) map[string]any {
	m := map[string]any{
		"id":         id,
		"state":      state,
		"repository": map[string]any{"id": 3, "name": "r", "path": "/Projects/demo/r"},
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func newRepos(t *testing.T, fake *fakeplatform.Server, opts ...Option) *Repos {
	t.Helper()
	opts = append([]Option{WithSleeper(noSleep)}, opts...)
	return NewRepos(fake.Client(t), opts...)
}

func TestGetRepo(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodGet, "/project/{projectID}/git", fakeplatform.Sequence(map[string]any{
		"count": 3,
		"items": []map[string]any{
			{"id": 1, "name": "r", "path": "/a"},
			{"id": 2, "name": "r", "path": "/b"},
			{"id": 3, "name": "s", "path": "/Projects/demo/s"},
		},
	}))
	repos := newRepos(t, fake)
	ctx := context.Background()

	_, err := repos.GetRepo(ctx, "r", "")
	require.Error(t, err)
	assert.True(t, operation.IsAmbiguous(err))
	assert.Contains(t, err.Error(), "specify the repository path")

	got, err := repos.GetRepo(ctx, "r", "/a")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ID)

	_, err = repos.GetRepo(ctx, "missing", "")
	require.Error(t, err)
	assert.True(t, operation.IsNotFound(err))

	got, err = repos.GetRepo(ctx, "s", "s")
	require.NoError(t, err, "relative paths resolve under the project root")
	assert.Equal(t, 3, got.ID)
}

func TestCommit_WaitsUntilOutcome(t *testing.T) {
	fake := fakeplatform.New(t)
	var body commitConfig
	fake.Handle(http.MethodPost, "/project/{projectID}/git/repository/{repoID}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "COMMIT", r.URL.Query().Get("action"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fakeplatform.JSON(w, http.StatusOK, execution(7, StateInitializing, nil))
	})
	fake.Handle(http.MethodGet, "/project/{projectID}/git/repository/{repoID}/execution/{execID}", fakeplatform.Sequence(
		execution(7, StateRunning, nil),
		execution(7, StateRunning, nil),
		execution(7, StateSuccess, nil),
	))

	core, logs := observer.New(zapcore.InfoLevel)
	repos := newRepos(t, fake, WithLogger(zap.New(core)))

	err := repos.Commit(context.Background(), 3, "update notebooks", false, []string{"a.ipynb"})
	require.NoError(t, err)

	assert.Equal(t, "commitCommandConfiguration", body.Type)
	assert.Equal(t, []string{"a.ipynb"}, body.Files)
	assert.Equal(t, 3, fake.Hits(http.MethodGet, "/project/119/git/repository/3/execution/7"))

	var states []string
	for _, e := range logs.FilterMessage("Running git command").All() {
		states = append(states, e.ContextMap()["state"].(string))
	}
	assert.Equal(t, []string{StateRunning, StateSuccess}, states)
}

func TestPush_FailureReturnsCommandError(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodPost, "/project/{projectID}/git/repository/{repoID}",
		fakeplatform.Sequence(execution(8, StateInitializing, nil)))
	fake.Handle(http.MethodGet, "/project/{projectID}/git/repository/{repoID}/execution/{execID}", fakeplatform.Sequence(
		execution(8, StateRunning, nil),
		execution(8, StateFailed, map[string]any{"commandResultMessage": "rejected: non-fast-forward"}),
	))

	var hooked []Action
	repos := newRepos(t, fake, WithFinishHook(func(a Action, op OpExecution, err error) {
		hooked = append(hooked, a)
		assert.Equal(t, 8, op.ID)
		assert.Error(t, err)
	}))

	err := repos.Push(context.Background(), 3, "origin", "main", false)
	require.Error(t, err)
	assert.True(t, operation.IsFailed(err))

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, ActionPush, cmdErr.Action)
	assert.Equal(t, 8, cmdErr.ExecutionID)
	assert.Equal(t, "git PUSH failed (execution 8): rejected: non-fast-forward", cmdErr.Error())
	assert.Equal(t, []Action{ActionPush}, hooked)
}

func TestCheckout_RefreshErrorPropagates(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodPost, "/project/{projectID}/git/repository/{repoID}/branch", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CHECKOUT_FORCE", r.URL.Query().Get("action"))
		assert.Equal(t, "dev", r.URL.Query().Get("branchName"))
		fakeplatform.JSON(w, http.StatusOK, map[string]any{"id": 9, "state": StateInitializing})
	})
	fake.Handle(http.MethodGet, "/project/{projectID}/git/repository/{repoID}/execution/{execID}", func(w http.ResponseWriter, _ *http.Request) {
		fakeplatform.Error(w, http.StatusServiceUnavailable, 0, "maintenance")
	})

	repos := newRepos(t, fake)
	err := repos.Checkout(context.Background(), 3, "dev", "", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrServer)

	var opErr *operation.Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, operation.KindGit, opErr.Kind)
	assert.Equal(t, "9", opErr.ID)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantMany bool
		want     []FileStatus
	}{
		{
			name:     "many",
			message:  `{"status":[{"file":"a.py","status":"MODIFIED"},{"file":"b.py","status":"UNTRACKED"}]}`,
			wantMany: true,
			want:     []FileStatus{{File: "a.py", Status: "MODIFIED"}, {File: "b.py", Status: "UNTRACKED"}},
		},
		{
			name:    "single",
			message: `{"status":{"file":"","status":"Nothing to commit, working tree clean"}}`,
			want:    []FileStatus{{Status: "Nothing to commit, working tree clean"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := fakeplatform.New(t)
			fake.Handle(http.MethodPost, "/project/{projectID}/git/repository/{repoID}",
				fakeplatform.Sequence(execution(11, StateInitializing, nil)))
			fake.Handle(http.MethodGet, "/project/{projectID}/git/repository/{repoID}/execution/{execID}",
				fakeplatform.Sequence(execution(11, StateSuccess, map[string]any{"commandResultMessage": tt.message})))

			payload, err := newRepos(t, fake).Status(context.Background(), 3)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMany, payload.IsMany())
			assert.Equal(t, tt.want, payload.Files())
		})
	}
}

func TestClone_ResolvesRepository(t *testing.T) {
	fake := fakeplatform.New(t)
	var cfg cloneConfig
	fake.Handle(http.MethodPost, "/project/{projectID}/git/clone", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))
		fakeplatform.JSON(w, http.StatusOK, execution(1, StateInitializing, nil))
	})
	fake.Handle(http.MethodGet, "/project/{projectID}/git/repository/{repoID}/execution/{execID}",
		fakeplatform.Sequence(execution(1, StateRunning, nil), execution(1, StateSuccess, nil)))
	fake.Handle(http.MethodGet, "/project/{projectID}/git", fakeplatform.Sequence(map[string]any{
		"items": []map[string]any{{"id": 3, "name": "r", "path": "/Projects/demo/r"}},
	}))

	repo, err := newRepos(t, fake).Clone(context.Background(), "https://github.com/x/r.git", "Jupyter", "GitHub", "")
	require.NoError(t, err)
	assert.Equal(t, 3, repo.ID)
	assert.Equal(t, "/Projects/demo/Jupyter", cfg.Path)
	assert.Nil(t, cfg.Branch)
}

func TestGetProvider(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodGet, "/users/git/provider", fakeplatform.Sequence(map[string]any{
		"items": []map[string]any{{"gitProvider": "GitHub", "username": "octo"}},
	}))
	repos := newRepos(t, fake)

	p, err := repos.GetProvider(context.Background(), "GitHub")
	require.NoError(t, err)
	assert.Equal(t, "octo", p.Username)

	_, err = repos.GetProvider(context.Background(), "GitLab")
	assert.True(t, operation.IsNotFound(err))
}
