package flink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gohops/pkg/client"
	"github.com/3leaps/gohops/pkg/job"
	"github.com/3leaps/gohops/pkg/operation"
)

// DefaultStartBudget is the number of polls Start spends waiting for a
// cluster to leave INITIALIZING.
const DefaultStartBudget = 120

const jarContentType = "application/x-java-archive"

// Cluster is a Flink cluster and, once started or attached, the execution
// that runs it.
type Cluster struct {
	job        job.Job
	execution  *job.Execution
	client     *client.Client
	executions *job.Executions
	log        *zap.Logger
	interval   time.Duration
	sleep      operation.Sleeper
}

// Job returns the job that defines the cluster.
func (c *Cluster) Job() job.Job {
	return c.job
}

// Execution returns the execution running the cluster, if any.
func (c *Cluster) Execution() (job.Execution, bool) {
	if c.execution == nil {
		return job.Execution{}, false
	}
	return *c.execution, true
}

// Start launches a new execution of the cluster and waits while it is
// INITIALIZING, for at most budget further polls. Any state other than
// RUNNING afterwards, including a cluster still INITIALIZING when the budget
// runs out, is reported as a *StartupError.
func (c *Cluster) Start(ctx context.Context, budget int) (job.Execution, error) {
	exec, err := c.executions.Start(ctx, c.job.Name, "")
	if err != nil {
		return job.Execution{}, operation.Wrap(operation.KindFlink, "submit", "", err)
	}
	id := strconv.Itoa(exec.ID)

	refresh := func(ctx context.Context) (job.Execution, error) {
		return c.executions.Get(ctx, c.job.Name, exec.ID)
	}
	settled := func(x job.Execution) bool { return x.State != job.StateInitializing }

	opts := []operation.Option[job.Execution]{
		operation.WithStateChange(
			func(x job.Execution) string { return x.State },
			func(x job.Execution) {
				c.log.Info("Waiting for cluster to start",
					zap.String("cluster", c.job.Name),
					zap.Int("execution_id", x.ID),
					zap.String("state", x.State))
			}),
	}
	if c.sleep != nil {
		opts = append(opts, operation.WithSleeper[job.Execution](c.sleep))
	}

	latest, _, err := operation.Wait(ctx, refresh, settled, operation.Bounded(c.interval, budget), opts...)
	if err != nil {
		return exec, operation.Wrap(operation.KindFlink, "refresh", id, err)
	}
	c.execution = &latest

	if latest.State != job.StateRunning {
		return latest, &StartupError{ExecutionID: latest.ID, State: latest.State}
	}
	c.log.Info("Cluster is running", zap.String("cluster", c.job.Name), zap.Int("execution_id", latest.ID))
	return latest, nil
}

// Attach binds the cluster to an existing execution. With id 0 the most
// recent RUNNING execution is used.
func (c *Cluster) Attach(ctx context.Context, id int) (job.Execution, error) {
	if id != 0 {
		exec, err := c.executions.Get(ctx, c.job.Name, id)
		if err != nil {
			return job.Execution{}, err
		}
		c.execution = &exec
		return exec, nil
	}

	execs, err := c.executions.List(ctx, c.job.Name)
	if err != nil {
		return job.Execution{}, err
	}
	var found *job.Execution
	for i := range execs {
		if execs[i].State != job.StateRunning {
			continue
		}
		if found == nil || execs[i].ID > found.ID {
			found = &execs[i]
		}
	}
	if found == nil {
		return job.Execution{}, fmt.Errorf("cluster %s: %w", c.job.Name, ErrNotStarted)
	}
	c.execution = found
	return *found, nil
}

// Stop shuts the cluster down.
func (c *Cluster) Stop(ctx context.Context) error {
	path, err := c.masterPath("cluster")
	if err != nil {
		return err
	}
	err = c.client.Do(ctx, client.Request{Method: http.MethodDelete, Path: path, NoBasePath: true}, nil)
	if err != nil {
		return err
	}
	c.log.Info("Cluster stopped", zap.String("cluster", c.job.Name))
	return nil
}

// GetJobs lists the jobs of the cluster.
func (c *Cluster) GetJobs(ctx context.Context) ([]Job, error) {
	path, err := c.masterPath("jobs")
	if err != nil {
		return nil, err
	}
	var resp jobsResponse
	if err := c.client.Do(ctx, client.Request{Path: path, NoBasePath: true}, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetJob returns one job of the cluster.
func (c *Cluster) GetJob(ctx context.Context, jobID string) (JobDetail, error) {
	path, err := c.masterPath("jobs", jobID)
	if err != nil {
		return JobDetail{}, err
	}
	var d JobDetail
	if err := c.client.Do(ctx, client.Request{Path: path, NoBasePath: true}, &d); err != nil {
		return JobDetail{}, err
	}
	return d, nil
}

// StopJob cancels a job of the cluster.
func (c *Cluster) StopJob(ctx context.Context, jobID string) error {
	path, err := c.masterPath("jobs", jobID)
	if err != nil {
		return err
	}
	return c.client.Do(ctx, client.Request{Method: http.MethodPatch, Path: path, NoBasePath: true}, nil)
}

// JobState returns the state of a job of the cluster.
func (c *Cluster) JobState(ctx context.Context, jobID string) (string, error) {
	d, err := c.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return d.State, nil
}

// GetJars lists the jars uploaded to the cluster.
func (c *Cluster) GetJars(ctx context.Context) ([]Jar, error) {
	path, err := c.masterPath("jars")
	if err != nil {
		return nil, err
	}
	var resp jarsResponse
	if err := c.client.Do(ctx, client.Request{Path: path, NoBasePath: true}, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// UploadJar uploads a local jar file to the cluster.
func (c *Cluster) UploadJar(ctx context.Context, jarPath string) error {
	path, err := c.masterPath("jars", "upload")
	if err != nil {
		return err
	}

	f, err := os.Open(jarPath)
	if err != nil {
		return fmt.Errorf("open jar: %w", err)
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="jarfile"; filename=%q`, filepath.Base(jarPath)))
	h.Set("Content-Type", jarContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("encode jar: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read jar: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("encode jar: %w", err)
	}

	err = c.client.Do(ctx, client.Request{
		Method:      http.MethodPost,
		Path:        path,
		RawBody:     &body,
		ContentType: mw.FormDataContentType(),
		NoBasePath:  true,
	}, nil)
	if err != nil {
		return err
	}
	c.log.Info("Flink jar uploaded", zap.String("cluster", c.job.Name), zap.String("jar", filepath.Base(jarPath)))
	return nil
}

// SubmitJob runs mainClass from an uploaded jar and returns the job id.
func (c *Cluster) SubmitJob(ctx context.Context, jarID, mainClass, args string) (string, error) {
	path, err := c.masterPath("jars", jarID, "run")
	if err != nil {
		return "", err
	}
	q := url.Values{"entry-class": {mainClass}}
	if args != "" {
		q.Set("program-args", args)
	}

	var resp runResponse
	err = c.client.Do(ctx, client.Request{
		Method:     http.MethodPost,
		Path:       path,
		Query:      q,
		NoBasePath: true,
	}, &resp)
	if err != nil {
		return "", err
	}
	c.log.Info("Flink job submitted", zap.String("cluster", c.job.Name), zap.String("job_id", resp.JobID))
	return resp.JobID, nil
}

// masterPath addresses the job manager proxy of the running execution.
func (c *Cluster) masterPath(segments ...string) ([]string, error) {
	if c.execution == nil || c.execution.AppID == "" {
		return nil, fmt.Errorf("cluster %s: %w", c.job.Name, ErrNotStarted)
	}
	return append([]string{"flinkmaster", c.execution.AppID}, segments...), nil
}
