package job

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/3leaps/gohops/pkg/client"
)

// API manages job definitions of a project.
type API struct {
	client *client.Client
}

// NewAPI creates a job API bound to the client's project.
func NewAPI(c *client.Client) *API {
	return &API{client: c}
}

// CreateJob defines a new job. It fails with ErrJobExists when name is taken.
func (a *API) CreateJob(ctx context.Context, name string, config map[string]any) (Job, error) {
	exists, err := a.Exists(ctx, name)
	if err != nil {
		return Job{}, err
	}
	if exists {
		return Job{}, fmt.Errorf("job %q: %w", name, ErrJobExists)
	}
	return a.put(ctx, name, config)
}

// UpdateJob replaces the configuration of an existing job.
func (a *API) UpdateJob(ctx context.Context, name string, config map[string]any) (Job, error) {
	return a.put(ctx, name, config)
}

func (a *API) put(ctx context.Context, name string, config map[string]any) (Job, error) {
	config, err := ValidateConfig(config, a.client.Project().Name)
	if err != nil {
		return Job{}, err
	}

	var j Job
	err = a.client.Do(ctx, client.Request{
		Method: http.MethodPut,
		Path:   a.client.ProjectPath("jobs", name),
		Body:   config,
	}, &j)
	if err != nil {
		return Job{}, err
	}
	return j, nil
}

// GetJob returns the job called name.
func (a *API) GetJob(ctx context.Context, name string) (Job, error) {
	var j Job
	err := a.client.Do(ctx, client.Request{
		Path:  a.client.ProjectPath("jobs", name),
		Query: url.Values{"expand": {"creator"}},
	}, &j)
	if err != nil {
		return Job{}, err
	}
	return j, nil
}

// Exists reports whether a job called name is defined. Any platform error
// response counts as "does not exist".
func (a *API) Exists(ctx context.Context, name string) (bool, error) {
	_, err := a.GetJob(ctx, name)
	if err == nil {
		return true, nil
	}
	if client.IsRestAPIError(err) {
		return false, nil
	}
	return false, err
}

// GetConfiguration returns the default configuration for a job type
// ("spark", "pyspark", "python", "docker", "flink").
func (a *API) GetConfiguration(ctx context.Context, jobType string) (map[string]any, error) {
	var cfg map[string]any
	err := a.client.Do(ctx, client.Request{
		Path: a.client.ProjectPath("jobs", strings.ToLower(jobType), "configuration"),
	}, &cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// DeleteJob deletes the job and all of its executions.
func (a *API) DeleteJob(ctx context.Context, name string) error {
	return a.client.Do(ctx, client.Request{
		Method: http.MethodDelete,
		Path:   a.client.ProjectPath("jobs", name),
	}, nil)
}
