// Package job manages jobs and drives their executions to completion.
package job

import (
	"errors"
	"strings"

	"github.com/3leaps/gohops/pkg/operation"
)

// ErrJobExists indicates a job with the requested name is already defined.
var ErrJobExists = errors.New("job already exists")

// Family is the job type tag fixed at definition time. It decides which
// status field is authoritative for the execution outcome.
type Family string

const (
	FamilySpark   Family = "spark"
	FamilyPySpark Family = "pyspark"
	FamilyFlink   Family = "flink"
	FamilyPython  Family = "python"
	FamilyDocker  Family = "docker"
)

// ParseFamily normalizes a platform job type ("SPARK", "PySpark", ...).
func ParseFamily(jobType string) Family {
	return Family(strings.ToLower(strings.TrimSpace(jobType)))
}

// IsYARN reports whether executions of f are reported through the YARN
// final status.
func (f Family) IsYARN() bool {
	switch f {
	case FamilySpark, FamilyPySpark, FamilyFlink:
		return true
	}
	return false
}

// String returns the string representation of the family.
func (f Family) String() string {
	return string(f)
}

// User is the platform user attached to jobs and executions.
type User struct {
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
}

// Job is a job definition.
type Job struct {
	ID           int            `json:"id"`
	Name         string         `json:"name"`
	JobType      string         `json:"jobType"`
	CreationTime string         `json:"creationTime,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	Creator      *User          `json:"creator,omitempty"`
}

// Family returns the job family.
func (j Job) Family() Family {
	if j.JobType != "" {
		return ParseFamily(j.JobType)
	}
	// older platforms only report the configuration type
	if t, ok := j.Config["type"].(string); ok {
		return ParseFamily(strings.TrimSuffix(t, "JobConfiguration"))
	}
	return ""
}

// Execution is a snapshot of one job execution.
//
// Snapshots are values: polling returns a new Execution and callers rebind.
type Execution struct {
	ID             int     `json:"id"`
	JobName        string  `json:"jobName,omitempty"`
	State          string  `json:"state"`
	FinalStatus    string  `json:"finalStatus,omitempty"`
	Success        *bool   `json:"success,omitempty"`
	Progress       float64 `json:"progress,omitempty"`
	SubmissionTime string  `json:"submissionTime,omitempty"`
	StdoutPath     string  `json:"stdoutPath,omitempty"`
	StderrPath     string  `json:"stderrPath,omitempty"`
	AppID          string  `json:"appId,omitempty"`
	HDFSUser       string  `json:"hdfsUser,omitempty"`
	Args           string  `json:"args,omitempty"`
	Duration       int64   `json:"duration,omitempty"`
	User           *User   `json:"user,omitempty"`
}

// Is reports whether e and other identify the same execution.
func (e Execution) Is(other Execution) bool {
	return e.ID == other.ID
}

// Execution states reported by the platform.
const (
	StateInitializing         = "INITIALIZING"
	StateSubmitted            = "SUBMITTED"
	StateRunning              = "RUNNING"
	StateAggregatingLogs      = "AGGREGATING_LOGS"
	StateFinished             = "FINISHED"
	StateFailed               = "FAILED"
	StateKilled               = "KILLED"
	StateFrameworkFailure     = "FRAMEWORK_FAILURE"
	StateAppMasterStartFailed = "APP_MASTER_START_FAILED"
	StateInitializationFailed = "INITIALIZATION_FAILED"
	StateConversionFailed     = "CONVERSION_FAILED"
	StateStopped              = "STOPPED"
	FinalStatusUndefined      = "UNDEFINED"
	FinalStatusSucceeded      = "SUCCEEDED"
	FinalStatusFailed         = "FAILED"
	FinalStatusKilled         = "KILLED"
)

// startupFailures never reach a YARN final status.
var startupFailures = map[string]bool{
	StateFrameworkFailure:     true,
	StateAppMasterStartFailed: true,
	StateInitializationFailed: true,
	StateConversionFailed:     true,
}

// Classify derives the outcome of exec for a job of family f.
//
// YARN families are decided by the final status once YARN sets one; before
// that the success flag decides, and executions that failed before YARN
// accepted them are recognized by state. Other families use the success flag
// when the platform reports one and fall back to the state. Unrecognized
// tokens are Unknown.
func Classify(f Family, exec Execution) operation.Outcome {
	if f.IsYARN() {
		switch strings.ToUpper(exec.FinalStatus) {
		case FinalStatusSucceeded:
			return operation.Succeeded
		case FinalStatusFailed, FinalStatusKilled:
			return operation.Failed
		}
		if exec.Success != nil {
			return operation.OutcomeOf(exec.Success)
		}
		if startupFailures[exec.State] {
			return operation.Failed
		}
		return operation.Unknown
	}

	if exec.Success != nil {
		return operation.OutcomeOf(exec.Success)
	}
	switch exec.State {
	case StateFinished:
		return operation.Succeeded
	case StateFailed, StateKilled, StateStopped:
		return operation.Failed
	}
	if startupFailures[exec.State] {
		return operation.Failed
	}
	return operation.Unknown
}

// AuthoritativeStatus returns the field that decides the outcome of exec.
func AuthoritativeStatus(f Family, exec Execution) string {
	if f.IsYARN() {
		return exec.FinalStatus
	}
	return exec.State
}

type itemsResponse[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
}
