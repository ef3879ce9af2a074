package job

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/3leaps/gohops/pkg/client"
)

// Executions manages the executions of a project's jobs.
type Executions struct {
	client *client.Client
}

// NewExecutions creates an executions API bound to the client's project.
func NewExecutions(c *client.Client) *Executions {
	return &Executions{client: c}
}

// Start submits a new execution of jobName with the given arguments.
func (x *Executions) Start(ctx context.Context, jobName, args string) (Execution, error) {
	var exec Execution
	err := x.client.Do(ctx, client.Request{
		Method:      http.MethodPost,
		Path:        x.client.ProjectPath("jobs", jobName, "executions"),
		RawBody:     strings.NewReader(args),
		ContentType: "text/plain",
	}, &exec)
	if err != nil {
		return Execution{}, err
	}
	exec.JobName = jobName
	return exec, nil
}

// Get fetches the current snapshot of an execution.
func (x *Executions) Get(ctx context.Context, jobName string, id int) (Execution, error) {
	var exec Execution
	err := x.client.Do(ctx, client.Request{
		Path: x.client.ProjectPath("jobs", jobName, "executions", strconv.Itoa(id)),
	}, &exec)
	if err != nil {
		return Execution{}, err
	}
	exec.JobName = jobName
	return exec, nil
}

// List returns all executions of jobName.
func (x *Executions) List(ctx context.Context, jobName string) ([]Execution, error) {
	var resp itemsResponse[Execution]
	err := x.client.Do(ctx, client.Request{
		Path: x.client.ProjectPath("jobs", jobName, "executions"),
	}, &resp)
	if err != nil {
		return nil, err
	}
	for i := range resp.Items {
		resp.Items[i].JobName = jobName
	}
	return resp.Items, nil
}

// Delete removes an execution and its logs.
func (x *Executions) Delete(ctx context.Context, jobName string, id int) error {
	return x.client.Do(ctx, client.Request{
		Method: http.MethodDelete,
		Path:   x.client.ProjectPath("jobs", jobName, "executions", strconv.Itoa(id)),
	}, nil)
}

// Stop asks the platform to stop a running execution.
func (x *Executions) Stop(ctx context.Context, jobName string, id int) (Execution, error) {
	var exec Execution
	err := x.client.Do(ctx, client.Request{
		Method: http.MethodPut,
		Path:   x.client.ProjectPath("jobs", jobName, "executions", strconv.Itoa(id), "status"),
		Body:   map[string]string{"state": "stopped"},
	}, &exec)
	if err != nil {
		return Execution{}, err
	}
	exec.JobName = jobName
	return exec, nil
}
