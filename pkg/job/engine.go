package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/gohops/pkg/dataset"
	"github.com/3leaps/gohops/pkg/operation"
)

// DefaultLogAggregationBudget is the number of extra polls spent waiting for
// the execution logs after the execution finished.
const DefaultLogAggregationBudget = 40

// Engine waits for executions to finish and collects their logs.
type Engine struct {
	executions *Executions
	store      dataset.Store
	log        *zap.Logger
	interval   time.Duration
	logBudget  int
	sleep      operation.Sleeper
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for progress messages.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithInterval sets the pause between polls.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithLogAggregationBudget sets how many extra polls are spent waiting for
// the execution logs. Zero checks once.
func WithLogAggregationBudget(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.logBudget = n
		}
	}
}

// WithSleeper replaces the sleep between polls.
func WithSleeper(s operation.Sleeper) Option {
	return func(e *Engine) {
		e.sleep = s
	}
}

// NewEngine creates an engine. store answers the log existence checks and
// serves log downloads.
func NewEngine(executions *Executions, store dataset.Store, opts ...Option) *Engine {
	e := &Engine{
		executions: executions,
		store:      store,
		log:        zap.NewNop(),
		interval:   operation.DefaultInterval,
		logBudget:  DefaultLogAggregationBudget,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Executions returns the executions API used by the engine.
func (e *Engine) Executions() *Executions {
	return e.executions
}

// logReadiness is a poll snapshot of the artifact wait.
type logReadiness struct {
	exec     Execution
	stdoutOK bool
	stderrOK bool
}

// WaitUntilFinished blocks until exec has a known outcome and its logs are
// available, then returns the latest snapshot.
//
// The first phase polls without bound until the platform reports the success
// flag; the state and final status only feed the log. The second
// phase polls at most the log aggregation budget until both the stdout and
// the stderr files exist; running out of budget is not an error. A failed
// execution is logged and returned without an error; use Succeeded to check
// the outcome.
func (e *Engine) WaitUntilFinished(ctx context.Context, job Job, exec Execution) (Execution, error) {
	family := job.Family()
	id := strconv.Itoa(exec.ID)

	refresh := func(ctx context.Context) (Execution, error) {
		return e.executions.Get(ctx, job.Name, exec.ID)
	}
	finished := func(x Execution) bool { return operation.OutcomeOf(x.Success).Known() }

	runOpts := []operation.Option[Execution]{
		operation.WithStateChange(
			func(x Execution) string { return x.State },
			func(x Execution) {
				fields := []zap.Field{
					zap.String("job", job.Name),
					zap.Int("execution_id", x.ID),
					zap.String("state", x.State),
				}
				if family.IsYARN() {
					fields = append(fields, zap.String("final_status", x.FinalStatus))
				}
				e.log.Info("Waiting for execution to finish", fields...)
			}),
	}
	if e.sleep != nil {
		runOpts = append(runOpts, operation.WithSleeper[Execution](e.sleep))
	}

	latest, _, err := operation.Wait(ctx, refresh, finished, operation.Policy{
		Interval: e.interval,
		Budget:   operation.Unbounded,
	}, runOpts...)
	if err != nil {
		if latest.ID == 0 {
			latest = exec
		}
		return latest, operation.Wrap(operation.KindExecution, "refresh", id, err)
	}

	e.log.Info("Waiting for log aggregation to finish", zap.String("job", job.Name), zap.Int("execution_id", latest.ID))

	checkLogs := func(ctx context.Context) (logReadiness, error) {
		x, err := refresh(ctx)
		if err != nil {
			return logReadiness{}, err
		}
		// both paths are checked on every poll
		outOK, err := e.exists(ctx, x.StdoutPath)
		if err != nil {
			return logReadiness{}, err
		}
		errOK, err := e.exists(ctx, x.StderrPath)
		if err != nil {
			return logReadiness{}, err
		}
		return logReadiness{exec: x, stdoutOK: outOK, stderrOK: errOK}, nil
	}
	ready := func(r logReadiness) bool { return r.stdoutOK && r.stderrOK }

	var logOpts []operation.Option[logReadiness]
	if e.sleep != nil {
		logOpts = append(logOpts, operation.WithSleeper[logReadiness](e.sleep))
	}

	snap, done, err := operation.Wait(ctx, checkLogs, ready, operation.Bounded(e.interval, e.logBudget), logOpts...)
	if snap.exec.ID != 0 {
		latest = snap.exec
	}
	if err != nil {
		return latest, operation.Wrap(operation.KindExecution, "refresh", id, err)
	}
	if !done {
		e.log.Warn("Log aggregation did not finish in time, proceeding without complete logs",
			zap.String("job", job.Name),
			zap.Int("execution_id", latest.ID),
			zap.Bool("stdout_available", snap.stdoutOK),
			zap.Bool("stderr_available", snap.stderrOK))
	}

	if Classify(family, latest) == operation.Succeeded {
		e.log.Info("Execution finished successfully", zap.String("job", job.Name), zap.Int("execution_id", latest.ID))
	} else {
		e.log.Error("Execution failed, see the logs for more information",
			zap.String("job", job.Name),
			zap.Int("execution_id", latest.ID),
			zap.String("status", AuthoritativeStatus(family, latest)))
	}
	return latest, nil
}

func (e *Engine) exists(ctx context.Context, path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	return e.store.Exists(ctx, path)
}

// Succeeded reports whether exec of job finished successfully.
func Succeeded(job Job, exec Execution) bool {
	return Classify(job.Family(), exec) == operation.Succeeded
}

// Logs are the local copies of an execution's output.
type Logs struct {
	// Dir is the directory the logs were downloaded into.
	Dir string

	// Stdout and Stderr are empty when the file was not available.
	Stdout string
	Stderr string
}

// DownloadLogs copies the stdout and stderr files of exec into a new
// directory logs-job-<name>-exec-<id>_<suffix> under baseDir (the current
// directory when empty). Missing files are skipped.
func (e *Engine) DownloadLogs(ctx context.Context, exec Execution, baseDir string) (Logs, error) {
	if baseDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Logs{}, fmt.Errorf("resolve working directory: %w", err)
		}
		baseDir = cwd
	}

	dir := filepath.Join(baseDir, fmt.Sprintf("logs-job-%s-exec-%d_%s", exec.JobName, exec.ID, uuid.New().String()[:16]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Logs{}, fmt.Errorf("create log directory: %w", err)
	}

	logs := Logs{Dir: dir}
	var err error
	if logs.Stdout, err = e.downloadIfExists(ctx, exec.StdoutPath, dir); err != nil {
		return logs, err
	}
	if logs.Stderr, err = e.downloadIfExists(ctx, exec.StderrPath, dir); err != nil {
		return logs, err
	}
	return logs, nil
}

func (e *Engine) downloadIfExists(ctx context.Context, path, dir string) (string, error) {
	ok, err := e.exists(ctx, path)
	if err != nil || !ok {
		return "", err
	}
	return e.store.Download(ctx, path, dir, false)
}

// Run starts an execution of job and, when await is set, waits for it to
// finish.
func (e *Engine) Run(ctx context.Context, job Job, args string, await bool) (Execution, error) {
	exec, err := e.executions.Start(ctx, job.Name, args)
	if err != nil {
		return Execution{}, operation.Wrap(operation.KindExecution, "submit", "", err)
	}
	e.log.Info("Execution started",
		zap.String("job", job.Name),
		zap.Int("execution_id", exec.ID),
		zap.String("state", exec.State))

	if !await {
		return exec, nil
	}
	return e.WaitUntilFinished(ctx, job, exec)
}
