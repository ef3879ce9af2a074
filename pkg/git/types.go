// Package git drives git commands executed remotely by the platform.
//
// Every command is submitted as an asynchronous operation. The returned
// OpExecution is polled until the platform reports a definitive outcome;
// failures surface as *CommandError naming the action and the remote detail.
package git

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/3leaps/gohops/pkg/operation"
)

// Action is a git command understood by the platform.
type Action string

const (
	ActionClone          Action = "CLONE"
	ActionCreate         Action = "CREATE"
	ActionCreateCheckout Action = "CREATE_CHECKOUT"
	ActionDelete         Action = "DELETE"
	ActionCheckout       Action = "CHECKOUT"
	ActionCheckoutForce  Action = "CHECKOUT_FORCE"
	ActionStatus         Action = "STATUS"
	ActionCommit         Action = "COMMIT"
	ActionPush           Action = "PUSH"
	ActionPull           Action = "PULL"
	ActionCheckoutFiles  Action = "CHECKOUT_FILES"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// Repo is a git repository registered in the project.
type Repo struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	Provider      string  `json:"provider,omitempty"`
	CurrentBranch string  `json:"currentBranch,omitempty"`
	ReadOnly      bool    `json:"readOnly,omitempty"`
	Creator       *User   `json:"creator,omitempty"`
	CurrentCommit *Commit `json:"currentCommit,omitempty"`
}

// User is the platform user attached to repos and executions.
type User struct {
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
}

// Commit is one entry of a branch history.
type Commit struct {
	Hash    string `json:"commitHash"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message,omitempty"`
	Time    string `json:"time,omitempty"`
}

// ProviderCredentials is a configured git provider (GitHub, GitLab, BitBucket).
type ProviderCredentials struct {
	Provider string `json:"gitProvider"`
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

// OpExecution is a snapshot of one remote git command.
//
// Snapshots are values: polling returns a new OpExecution and callers rebind.
type OpExecution struct {
	ID    int
	State string

	// Success is nil while the outcome is not known.
	Success *bool

	// CommandResultMessage is the raw result payload; for STATUS it is a JSON
	// document, on failure the error detail.
	CommandResultMessage string

	SubmittedAt time.Time
	StartedAt   time.Time
	StoppedAt   time.Time

	Repository *Repo
	User       *User
}

// Git command execution states reported by the platform.
const (
	StateInitializing         = "Initializing"
	StateRunning              = "Running"
	StateSuccess              = "Success"
	StateFailed               = "Failed"
	StateKilled               = "Killed"
	StateInitializationFailed = "Initialization failed"
	StateTimedout             = "Timedout"
)

// Outcome derives the tri-state outcome. An explicit success flag wins;
// otherwise the state is matched against the known terminal states and any
// other state is treated as still running.
func (e OpExecution) Outcome() operation.Outcome {
	if e.Success != nil {
		return operation.OutcomeOf(e.Success)
	}
	switch e.State {
	case StateSuccess:
		return operation.Succeeded
	case StateFailed, StateKilled, StateInitializationFailed, StateTimedout:
		return operation.Failed
	}
	return operation.Unknown
}

// Is reports whether e and other identify the same remote execution.
func (e OpExecution) Is(other OpExecution) bool {
	return e.ID == other.ID
}

// RepoID returns the id of the repository the command runs against.
func (e OpExecution) RepoID() int {
	if e.Repository == nil {
		return 0
	}
	return e.Repository.ID
}

type opExecutionJSON struct {
	ID                   int    `json:"id"`
	State                string `json:"state"`
	Success              *bool  `json:"success,omitempty"`
	CommandResultMessage string `json:"commandResultMessage"`
	SubmissionTime       int64  `json:"submissionTime"`
	ExecutionStart       int64  `json:"executionStart"`
	ExecutionStop        int64  `json:"executionStop"`
	Repository           *Repo  `json:"repository,omitempty"`
	User                 *User  `json:"user,omitempty"`
}

// UnmarshalJSON decodes the platform representation.
func (e *OpExecution) UnmarshalJSON(data []byte) error {
	var raw opExecutionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = OpExecution{
		ID:                   raw.ID,
		State:                raw.State,
		Success:              raw.Success,
		CommandResultMessage: raw.CommandResultMessage,
		SubmittedAt:          millis(raw.SubmissionTime),
		StartedAt:            millis(raw.ExecutionStart),
		StoppedAt:            millis(raw.ExecutionStop),
		Repository:           raw.Repository,
		User:                 raw.User,
	}
	return nil
}

// MarshalJSON encodes the platform representation.
func (e OpExecution) MarshalJSON() ([]byte, error) {
	return json.Marshal(opExecutionJSON{
		ID:                   e.ID,
		State:                e.State,
		Success:              e.Success,
		CommandResultMessage: e.CommandResultMessage,
		SubmissionTime:       unixMillis(e.SubmittedAt),
		ExecutionStart:       unixMillis(e.StartedAt),
		ExecutionStop:        unixMillis(e.StoppedAt),
		Repository:           e.Repository,
		User:                 e.User,
	})
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FileStatus is the status of one file in the working tree.
type FileStatus struct {
	File   string `json:"file"`
	Status string `json:"status"`
	Extra  string `json:"extra,omitempty"`
}

// StatusPayload is the parsed result of a STATUS command. The platform
// reports either a single aggregate entry or a list of per-file entries;
// exactly one of Single and Many is set.
type StatusPayload struct {
	Single *FileStatus
	Many   []FileStatus
}

// IsMany reports whether the payload carries per-file entries.
func (p StatusPayload) IsMany() bool {
	return p.Single == nil
}

// Files returns the per-file entries, wrapping a single aggregate in a
// one-element list.
func (p StatusPayload) Files() []FileStatus {
	if p.Single != nil {
		return []FileStatus{*p.Single}
	}
	return p.Many
}

// ParseStatus decodes a STATUS command result message of the form
// {"status": <entry> | [<entry>, ...]}.
func ParseStatus(msg string) (StatusPayload, error) {
	var doc struct {
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal([]byte(msg), &doc); err != nil {
		return StatusPayload{}, fmt.Errorf("parse status result: %w", err)
	}

	raw := bytes.TrimSpace(doc.Status)
	switch {
	case len(raw) == 0 || string(raw) == "null":
		return StatusPayload{Many: []FileStatus{}}, nil
	case raw[0] == '[':
		var many []FileStatus
		if err := json.Unmarshal(raw, &many); err != nil {
			return StatusPayload{}, fmt.Errorf("parse status entries: %w", err)
		}
		if many == nil {
			many = []FileStatus{}
		}
		return StatusPayload{Many: many}, nil
	case raw[0] == '{':
		var single FileStatus
		if err := json.Unmarshal(raw, &single); err != nil {
			return StatusPayload{}, fmt.Errorf("parse status entry: %w", err)
		}
		return StatusPayload{Single: &single}, nil
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return StatusPayload{}, fmt.Errorf("parse status entry: %w", err)
		}
		return StatusPayload{Single: &FileStatus{Status: s}}, nil
	}
	return StatusPayload{}, fmt.Errorf("parse status result: unexpected payload %s", strconv.Quote(string(raw)))
}

type itemsResponse[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
}
