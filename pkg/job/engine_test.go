package job

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/gohops/pkg/dataset"
	"github.com/3leaps/gohops/pkg/operation"
	"github.com/3leaps/gohops/test/fakeplatform"
)

const (
	stdoutPath = "/Projects/demo/Logs/Spark/application_1/stdout.log"
	stderrPath = "/Projects/demo/Logs/Spark/application_1/stderr.log"
)

func noSleep(context.Context, time.Duration) error { return nil }

// scriptedStore answers existence checks from a single sequence shared by
// all paths, in call order.
type scriptedStore struct {
	mu      sync.Mutex
	answers []bool
	calls   []string
}

func (s *scriptedStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.calls)
	s.calls = append(s.calls, path)
	if i >= len(s.answers) {
		i = len(s.answers) - 1
	}
	return s.answers[i], nil
}

func (s *scriptedStore) Download(context.Context, string, string, bool) (string, error) {
	return "", errors.New("not implemented")
}

// sparkExec reports the success flag together with a settled final status,
// the way the platform does.
func sparkExec(state, finalStatus string) map[string]any {
	m := map[string]any{
		"id":          5,
		"state":       state,
		"finalStatus": finalStatus,
		"stdoutPath":  stdoutPath,
		"stderrPath":  stderrPath,
		"appId":       "application_1",
	}
	switch finalStatus {
	case FinalStatusSucceeded:
		m["success"] = true
	case FinalStatusFailed, FinalStatusKilled:
		m["success"] = false
	}
	return m
}

var sparkJob = Job{ID: 1, Name: "etl", JobType: "SPARK"}

func TestClassify(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name   string
		family Family
		exec   Execution
		want   operation.Outcome
	}{
		{
			name:   "spark succeeded regardless of state",
			family: FamilySpark,
			exec:   Execution{State: StateFailed, FinalStatus: FinalStatusSucceeded},
			want:   operation.Succeeded,
		},
		{
			name:   "spark success flag before final status",
			family: FamilySpark,
			exec:   Execution{State: StateFinished, FinalStatus: FinalStatusUndefined, Success: &yes},
			want:   operation.Succeeded,
		},
		{
			name:   "spark killed before final status",
			family: FamilySpark,
			exec:   Execution{State: StateKilled, FinalStatus: FinalStatusUndefined, Success: &no},
			want:   operation.Failed,
		},
		{
			name:   "spark final status outranks success flag",
			family: FamilySpark,
			exec:   Execution{State: StateFinished, FinalStatus: FinalStatusFailed, Success: &yes},
			want:   operation.Failed,
		},
		{
			name:   "spark running",
			family: FamilySpark,
			exec:   Execution{State: StateRunning, FinalStatus: FinalStatusUndefined},
			want:   operation.Unknown,
		},
		{
			name:   "pyspark killed",
			family: FamilyPySpark,
			exec:   Execution{State: StateKilled, FinalStatus: FinalStatusKilled},
			want:   operation.Failed,
		},
		{
			name:   "flink never accepted by yarn",
			family: FamilyFlink,
			exec:   Execution{State: StateAppMasterStartFailed, FinalStatus: FinalStatusUndefined},
			want:   operation.Failed,
		},
		{
			name:   "python finished regardless of final status",
			family: FamilyPython,
			exec:   Execution{State: StateFinished, FinalStatus: FinalStatusFailed, Success: &yes},
			want:   operation.Succeeded,
		},
		{
			name:   "python explicit failure",
			family: FamilyPython,
			exec:   Execution{State: StateFinished, Success: &no},
			want:   operation.Failed,
		},
		{
			name:   "docker state fallback",
			family: FamilyDocker,
			exec:   Execution{State: StateFailed},
			want:   operation.Failed,
		},
		{
			name:   "unknown token keeps polling",
			family: FamilyPython,
			exec:   Execution{State: "SCHEDULED"},
			want:   operation.Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.family, tt.exec))
		})
	}
}

func TestJobFamily(t *testing.T) {
	assert.Equal(t, FamilyPySpark, Job{JobType: "PYSPARK"}.Family())
	assert.Equal(t, FamilyPython, Job{Config: map[string]any{"type": "pythonJobConfiguration"}}.Family())
	assert.True(t, FamilyFlink.IsYARN())
	assert.False(t, FamilyDocker.IsYARN())
}

func TestWaitUntilFinished_ArtifactsReadyWithinBudget(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodGet, "/project/{projectID}/jobs/{job}/executions/{id}", fakeplatform.Sequence(
		sparkExec(StateRunning, FinalStatusUndefined),
		sparkExec(StateAggregatingLogs, FinalStatusSucceeded),
	))

	store := &scriptedStore{answers: []bool{false, false, true, true}}
	engine := NewEngine(NewExecutions(fake.Client(t)), store,
		WithSleeper(noSleep), WithLogAggregationBudget(2))

	got, err := engine.WaitUntilFinished(context.Background(), sparkJob, Execution{ID: 5, JobName: "etl"})
	require.NoError(t, err)
	assert.Equal(t, StateAggregatingLogs, got.State)
	assert.True(t, Succeeded(sparkJob, got))

	// two polls of the log phase, both paths checked on each
	assert.Equal(t, []string{stdoutPath, stderrPath, stdoutPath, stderrPath}, store.calls)
	assert.Equal(t, 4, fake.Hits(http.MethodGet, "/project/119/jobs/etl/executions/5"))
}

func TestWaitUntilFinished_LogBudgetExhaustionIsSoft(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodGet, "/project/{projectID}/jobs/{job}/executions/{id}", fakeplatform.Sequence(
		sparkExec(StateFailed, FinalStatusFailed),
	))

	core, logs := observer.New(zapcore.InfoLevel)
	store := &scriptedStore{answers: []bool{false}}
	engine := NewEngine(NewExecutions(fake.Client(t)), store,
		WithSleeper(noSleep), WithLogAggregationBudget(2), WithLogger(zap.New(core)))

	got, err := engine.WaitUntilFinished(context.Background(), sparkJob, Execution{ID: 5})
	require.NoError(t, err, "failed executions and missing logs are not errors")
	assert.False(t, Succeeded(sparkJob, got))
	assert.Equal(t, FinalStatusFailed, got.FinalStatus)

	// one run poll, then budget 2 allows three log polls
	assert.Equal(t, 4, fake.Hits(http.MethodGet, "/project/119/jobs/etl/executions/5"))
	assert.Len(t, store.calls, 6)
	assert.Equal(t, 1, logs.FilterMessage("Log aggregation did not finish in time, proceeding without complete logs").Len())

	failed := logs.FilterMessage("Execution failed, see the logs for more information").All()
	require.Len(t, failed, 1)
	assert.Equal(t, FinalStatusFailed, failed[0].ContextMap()["status"])
}

func TestWaitUntilFinished_YARNStopsOnSuccessFlag(t *testing.T) {
	fake := fakeplatform.New(t)
	killed := sparkExec(StateKilled, FinalStatusUndefined)
	killed["success"] = false
	fake.Handle(http.MethodGet, "/project/{projectID}/jobs/{job}/executions/{id}", fakeplatform.Sequence(
		sparkExec(StateRunning, FinalStatusUndefined),
		killed,
	))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	engine := NewEngine(NewExecutions(fake.Client(t)), &scriptedStore{answers: []bool{true}},
		WithSleeper(noSleep), WithLogAggregationBudget(0))

	got, err := engine.WaitUntilFinished(ctx, sparkJob, Execution{ID: 5})
	require.NoError(t, err)
	assert.Equal(t, StateKilled, got.State)
	assert.Equal(t, FinalStatusUndefined, got.FinalStatus)
	assert.False(t, Succeeded(sparkJob, got))

	// two run polls, one log poll
	assert.Equal(t, 3, fake.Hits(http.MethodGet, "/project/119/jobs/etl/executions/5"))
}

func TestWaitUntilFinished_PythonWaitsForSuccessFlag(t *testing.T) {
	fake := fakeplatform.New(t)
	python := func(state string, success any) map[string]any {
		m := map[string]any{"id": 9, "state": state, "stdoutPath": stdoutPath, "stderrPath": stderrPath}
		if success != nil {
			m["success"] = success
		}
		return m
	}
	fake.Handle(http.MethodGet, "/project/{projectID}/jobs/{job}/executions/{id}", fakeplatform.Sequence(
		python(StateFinished, nil),
		python(StateFinished, nil),
		python(StateFinished, false),
	))
	engine := NewEngine(NewExecutions(fake.Client(t)), &scriptedStore{answers: []bool{true}},
		WithSleeper(noSleep), WithLogAggregationBudget(0))

	pyJob := Job{Name: "train", JobType: "PYTHON"}
	got, err := engine.WaitUntilFinished(context.Background(), pyJob, Execution{ID: 9})
	require.NoError(t, err)
	require.NotNil(t, got.Success)
	assert.False(t, Succeeded(pyJob, got), "the success flag outranks a FINISHED state")

	// FINISHED without a success flag keeps polling
	assert.Equal(t, 4, fake.Hits(http.MethodGet, "/project/119/jobs/train/executions/9"))
}

func TestWaitUntilFinished_StateChangesLoggedOnce(t *testing.T) {
	fake := fakeplatform.New(t)
	python := func(state string, success *bool) map[string]any {
		m := map[string]any{"id": 9, "state": state, "stdoutPath": stdoutPath, "stderrPath": stderrPath}
		if success != nil {
			m["success"] = *success
		}
		return m
	}
	yes := true
	fake.Handle(http.MethodGet, "/project/{projectID}/jobs/{job}/executions/{id}", fakeplatform.Sequence(
		python(StateInitializing, nil),
		python(StateRunning, nil),
		python(StateRunning, nil),
		python(StateRunning, nil),
		python(StateFinished, &yes),
	))
	fake.SetDataset(stdoutPath, []byte("out"))
	fake.SetDataset(stderrPath, []byte("err"))

	core, logs := observer.New(zapcore.InfoLevel)
	c := fake.Client(t)
	engine := NewEngine(NewExecutions(c), dataset.NewAPI(c), WithSleeper(noSleep), WithLogger(zap.New(core)))

	pyJob := Job{Name: "train", JobType: "PYTHON"}
	got, err := engine.WaitUntilFinished(context.Background(), pyJob, Execution{ID: 9})
	require.NoError(t, err)
	assert.True(t, Succeeded(pyJob, got))

	var states []string
	for _, e := range logs.FilterMessage("Waiting for execution to finish").All() {
		states = append(states, e.ContextMap()["state"].(string))
		assert.NotContains(t, e.ContextMap(), "final_status")
	}
	assert.Equal(t, []string{StateInitializing, StateRunning, StateFinished}, states)
}

func TestWaitUntilFinished_RefreshError(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodGet, "/project/{projectID}/jobs/{job}/executions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		fakeplatform.Error(w, http.StatusNotFound, 130009, "execution not found")
	})
	engine := NewEngine(NewExecutions(fake.Client(t)), &scriptedStore{answers: []bool{true}}, WithSleeper(noSleep))

	got, err := engine.WaitUntilFinished(context.Background(), sparkJob, Execution{ID: 5, State: StateSubmitted})
	require.Error(t, err)
	assert.Equal(t, StateSubmitted, got.State, "the caller's snapshot is returned when nothing was fetched")

	var opErr *operation.Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, operation.KindExecution, opErr.Kind)
	assert.Equal(t, "5", opErr.ID)
}

func TestDownloadLogs(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.SetDataset(stdoutPath, []byte("hello stdout\n"))
	c := fake.Client(t)
	engine := NewEngine(NewExecutions(c), dataset.NewAPI(c))
	base := t.TempDir()

	logs, err := engine.DownloadLogs(context.Background(), Execution{
		ID:         5,
		JobName:    "etl",
		StdoutPath: stdoutPath,
		StderrPath: stderrPath,
	}, base)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^logs-job-etl-exec-5_[0-9a-f-]{16}$`), filepath.Base(logs.Dir))
	assert.Equal(t, filepath.Join(logs.Dir, "stdout.log"), logs.Stdout)
	assert.Empty(t, logs.Stderr, "missing stderr is skipped")

	data, err := os.ReadFile(logs.Stdout)
	require.NoError(t, err)
	assert.Equal(t, "hello stdout\n", string(data))
}

func TestRun_NoWait(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodPost, "/project/{projectID}/jobs/{job}/executions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		fakeplatform.JSON(w, http.StatusCreated, map[string]any{"id": 12, "state": StateInitializing})
	})
	engine := NewEngine(NewExecutions(fake.Client(t)), &scriptedStore{answers: []bool{true}})

	got, err := engine.Run(context.Background(), sparkJob, "--epochs 3", false)
	require.NoError(t, err)
	assert.Equal(t, 12, got.ID)
	assert.Equal(t, "etl", got.JobName)
	assert.Equal(t, 0, fake.Hits(http.MethodGet, "/project/119/jobs/etl/executions/12"))
}
