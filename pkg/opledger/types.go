package opledger

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/3leaps/gohops/pkg/operation"
)

// Status is the lifecycle state of a ledger record.
//
// NOTE: These values are persisted in record.json and are part of the stable
// on-disk contract.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// StatusOf maps an operation outcome to a terminal ledger status.
func StatusOf(o operation.Outcome) Status {
	switch o {
	case operation.Succeeded:
		return StatusSucceeded
	case operation.Failed:
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// Terminal reports whether no further updates are expected.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Record is the local trace of one remote operation the CLI submitted and
// awaited.
type Record struct {
	ID     string         `json:"id"`
	Kind   operation.Kind `json:"kind"`
	Status Status         `json:"status"`

	// RemoteID is the id the platform assigned (execution id, git execution id).
	RemoteID string `json:"remote_id,omitempty"`

	// Name is the job, cluster or repository the operation belongs to.
	Name string `json:"name,omitempty"`

	// Action is the submitted command, e.g. "run", "start", "commit".
	Action string `json:"action,omitempty"`

	// State is the last lifecycle state reported by the platform.
	State string `json:"state,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	StdoutPath  string     `json:"stdout_path,omitempty"`
	StderrPath  string     `json:"stderr_path,omitempty"`
	LocalLogDir string     `json:"local_log_dir,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewRecord starts a running record with a fresh id.
func NewRecord(kind operation.Kind, name, action string) *Record {
	return &Record{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    StatusRunning,
		Name:      strings.TrimSpace(name),
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
}

// Finish marks the record terminal. A non-nil err is recorded and, when the
// outcome is still unknown, marks the record failed.
func (r *Record) Finish(outcome operation.Outcome, state string, err error) {
	now := time.Now().UTC()
	r.EndedAt = &now
	r.State = state
	r.Status = StatusOf(outcome)
	if err != nil {
		r.Error = err.Error()
		if r.Status == StatusUnknown {
			r.Status = StatusFailed
		}
	}
}
