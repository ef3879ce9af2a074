package flink

import (
	"errors"
	"fmt"

	"github.com/3leaps/gohops/pkg/operation"
)

// ErrNotStarted is returned by proxy calls on a cluster without a running
// execution.
var ErrNotStarted = errors.New("flink cluster has no running execution")

// StartupError reports a cluster that did not reach RUNNING.
type StartupError struct {
	ExecutionID int
	State       string
}

// Error implements the error interface.
func (e *StartupError) Error() string {
	return fmt.Sprintf("flink cluster execution %d did not start within the allocated time and exited with state %s",
		e.ExecutionID, e.State)
}

// Unwrap returns operation.ErrFailed for errors.Is support.
func (e *StartupError) Unwrap() error {
	return operation.ErrFailed
}

// Job is a job running inside a cluster as listed by the job manager.
type Job struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobDetail is the job manager view of one job.
type JobDetail struct {
	ID        string `json:"jid"`
	Name      string `json:"name"`
	State     string `json:"state"`
	StartTime int64  `json:"start-time"`
	EndTime   int64  `json:"end-time"`
	Duration  int64  `json:"duration"`
}

// Jar is a jar file uploaded to a cluster.
type Jar struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Uploaded int64      `json:"uploaded"`
	Entry    []JarEntry `json:"entry,omitempty"`
}

// JarEntry is an entry point found in a jar.
type JarEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type jobsResponse struct {
	Jobs []Job `json:"jobs"`
}

type jarsResponse struct {
	Address string `json:"address"`
	Files   []Jar  `json:"files"`
}

type runResponse struct {
	JobID string `json:"jobid"`
}
