package git

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/3leaps/gohops/pkg/client"
	"github.com/3leaps/gohops/pkg/operation"
)

// CommandError reports a git command that reached a failed terminal state.
type CommandError struct {
	Action      Action
	ExecutionID int

	// Message is the failure detail reported by the platform.
	Message string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("git %s failed (execution %d)", e.Action, e.ExecutionID)
	}
	return fmt.Sprintf("git %s failed (execution %d): %s", e.Action, e.ExecutionID, e.Message)
}

// Unwrap returns operation.ErrFailed for errors.Is support.
func (e *CommandError) Unwrap() error {
	return operation.ErrFailed
}

// Engine waits for submitted git commands to finish.
type Engine struct {
	client *client.Client
	log    *zap.Logger
	policy operation.Policy
	sleep  operation.Sleeper
	finish FinishHook
}

// FinishHook observes every command the engine awaited, successful or not.
type FinishHook func(action Action, op OpExecution, err error)

// Option configures an Engine or Repos.
type Option func(*Engine)

// WithLogger sets the logger used for progress messages.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithPolicy overrides the wait policy. The budget is ignored: git commands
// are always awaited until the platform reports an outcome.
func WithPolicy(p operation.Policy) Option {
	return func(e *Engine) {
		e.policy = operation.Policy{Interval: p.Interval, Budget: operation.Unbounded}
	}
}

// WithSleeper replaces the sleep between polls.
func WithSleeper(s operation.Sleeper) Option {
	return func(e *Engine) {
		e.sleep = s
	}
}

// WithFinishHook registers fn to run after each awaited command.
func WithFinishHook(fn FinishHook) Option {
	return func(e *Engine) {
		e.finish = fn
	}
}

// NewEngine creates an engine bound to the client's project.
func NewEngine(c *client.Client, opts ...Option) *Engine {
	e := &Engine{
		client: c,
		log:    zap.NewNop(),
		policy: operation.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get fetches the current snapshot of a git command execution.
func (e *Engine) Get(ctx context.Context, repoID, executionID int) (OpExecution, error) {
	var op OpExecution
	err := e.client.Do(ctx, client.Request{
		Path: e.client.ProjectPath("git", "repository", strconv.Itoa(repoID),
			"execution", strconv.Itoa(executionID)),
		Query: url.Values{"expand": {"repository", "user"}},
	}, &op)
	if err != nil {
		return OpExecution{}, err
	}
	return op, nil
}

// ExecuteBlocking waits until the platform reports an outcome for op.
//
// The latest snapshot is returned. A failed outcome returns *CommandError;
// platform errors during polling are returned as *operation.Error wrapping
// the client error, together with the last snapshot that was fetched.
func (e *Engine) ExecuteBlocking(ctx context.Context, op OpExecution, action Action) (OpExecution, error) {
	final, err := e.executeBlocking(ctx, op, action)
	if e.finish != nil {
		e.finish(action, final, err)
	}
	return final, err
}

func (e *Engine) executeBlocking(ctx context.Context, op OpExecution, action Action) (OpExecution, error) {
	repoID := op.RepoID()
	if repoID == 0 {
		return op, operation.Wrap(operation.KindGit, string(action), strconv.Itoa(op.ID),
			fmt.Errorf("execution carries no repository"))
	}

	refresh := func(ctx context.Context) (OpExecution, error) {
		return e.Get(ctx, repoID, op.ID)
	}
	known := func(o OpExecution) bool { return o.Outcome().Known() }

	opts := []operation.Option[OpExecution]{
		operation.WithStateChange(
			func(o OpExecution) string { return o.State },
			func(o OpExecution) {
				e.log.Info("Running git command",
					zap.String("action", action.String()),
					zap.Int("execution_id", o.ID),
					zap.String("state", o.State))
			}),
	}
	if e.sleep != nil {
		opts = append(opts, operation.WithSleeper[OpExecution](e.sleep))
	}

	final, _, err := operation.Wait(ctx, refresh, known, e.policy, opts...)
	if err != nil {
		if final.ID == 0 {
			final = op
		}
		return final, operation.Wrap(operation.KindGit, "refresh", strconv.Itoa(op.ID), err)
	}

	if final.Outcome() == operation.Failed {
		return final, &CommandError{
			Action:      action,
			ExecutionID: final.ID,
			Message:     final.CommandResultMessage,
		}
	}

	e.log.Debug("Git command finished",
		zap.String("action", action.String()),
		zap.Int("execution_id", final.ID),
		zap.Int("repo", repoID))
	return final, nil
}
