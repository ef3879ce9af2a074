// Package flink manages Flink clusters, which the platform runs as long-lived
// executions of a job of the flink family.
package flink

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gohops/pkg/client"
	"github.com/3leaps/gohops/pkg/job"
	"github.com/3leaps/gohops/pkg/operation"
)

// API creates and looks up clusters.
type API struct {
	client     *client.Client
	jobs       *job.API
	executions *job.Executions
	log        *zap.Logger
	interval   time.Duration
	sleep      operation.Sleeper
}

// Option configures an API and the clusters it returns.
type Option func(*API)

// WithLogger sets the logger used for progress messages.
func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

// WithInterval sets the pause between polls while a cluster starts.
func WithInterval(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithSleeper replaces the sleep between polls.
func WithSleeper(s operation.Sleeper) Option {
	return func(a *API) {
		a.sleep = s
	}
}

// NewAPI creates a cluster API bound to the client's project.
func NewAPI(c *client.Client, opts ...Option) *API {
	a := &API{
		client:     c,
		jobs:       job.NewAPI(c),
		executions: job.NewExecutions(c),
		log:        zap.NewNop(),
		interval:   operation.DefaultInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetConfiguration returns the default configuration of a cluster.
func (a *API) GetConfiguration(ctx context.Context) (map[string]any, error) {
	return a.jobs.GetConfiguration(ctx, string(job.FamilyFlink))
}

// SetupCluster returns the cluster called name, creating it first when it
// does not exist. A nil config creates the cluster from the default
// configuration.
func (a *API) SetupCluster(ctx context.Context, name string, config map[string]any) (*Cluster, error) {
	exists, err := a.jobs.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return a.GetCluster(ctx, name)
	}

	if config == nil {
		config, err = a.GetConfiguration(ctx)
		if err != nil {
			return nil, err
		}
		config["appName"] = name
	}
	return a.CreateCluster(ctx, name, config)
}

// CreateCluster defines a cluster or replaces the configuration of an
// existing one.
func (a *API) CreateCluster(ctx context.Context, name string, config map[string]any) (*Cluster, error) {
	j, err := a.jobs.UpdateJob(ctx, name, config)
	if err != nil {
		return nil, err
	}
	a.log.Info("Flink cluster created", zap.String("name", j.Name), zap.Int("job_id", j.ID))
	return a.newCluster(j), nil
}

// GetCluster returns the cluster called name.
func (a *API) GetCluster(ctx context.Context, name string) (*Cluster, error) {
	j, err := a.jobs.GetJob(ctx, name)
	if err != nil {
		return nil, err
	}
	return a.newCluster(j), nil
}

func (a *API) newCluster(j job.Job) *Cluster {
	return &Cluster{
		job:        j,
		client:     a.client,
		executions: a.executions,
		log:        a.log,
		interval:   a.interval,
		sleep:      a.sleep,
	}
}
