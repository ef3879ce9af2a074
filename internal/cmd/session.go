package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/gohops/internal/config"
	"github.com/3leaps/gohops/internal/observability"
	"github.com/3leaps/gohops/pkg/client"
	"github.com/3leaps/gohops/pkg/dataset"
	"github.com/3leaps/gohops/pkg/dataset/s3"
	"github.com/3leaps/gohops/pkg/git"
	"github.com/3leaps/gohops/pkg/opledger"
	"github.com/3leaps/gohops/pkg/operation"
	"github.com/3leaps/gohops/pkg/project"
)

// session holds what a command needs to talk to the platform.
type session struct {
	cfg     *config.Config
	log     *zap.Logger
	client  *client.Client
	project project.Project
	store   datasetStore
	ledger  *opledger.Store
}

// datasetStore is implemented by both dataset backends.
type datasetStore interface {
	dataset.Store
	Remove(ctx context.Context, path string) error
}

// newPlatformSession connects to the platform without selecting a project.
func newPlatformSession() (*session, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, exitError(ExitConfigError, "Configuration not loaded", nil)
	}
	if cfg.Platform.URL == "" || cfg.Platform.APIKey == "" {
		return nil, exitError(ExitConfigError, "Platform URL and API key are required",
			fmt.Errorf("set --url/--api-key, GOHOPS_URL/GOHOPS_API_KEY or platform.url/platform.api_key"))
	}

	c, err := client.New(client.Config{
		BaseURL:   cfg.Platform.URL,
		APIKey:    cfg.Platform.APIKey,
		Timeout:   cfg.Platform.Timeout,
		RateLimit: cfg.Platform.RateLimit,
		UserAgent: cfg.Platform.UserAgent + "/" + versionInfo.Version,
	})
	if err != nil {
		return nil, exitError(ExitConfigError, "Invalid platform configuration", err)
	}

	return &session{
		cfg:    cfg,
		log:    observability.CLILogger,
		client: c,
		ledger: opledger.NewStore(cfg.Ledger.Dir),
	}, nil
}

// newSession connects to the platform and scopes the client to the
// configured project.
func newSession(ctx context.Context) (*session, error) {
	s, err := newPlatformSession()
	if err != nil {
		return nil, err
	}
	if s.cfg.Platform.Project == "" {
		return nil, exitError(ExitConfigError, "Project is required", fmt.Errorf("set --project, GOHOPS_PROJECT or platform.project"))
	}

	scoped, p, err := project.NewAPI(s.client).Scope(ctx, s.client, s.cfg.Platform.Project)
	if err != nil {
		return nil, platformError("Failed to open project", err)
	}
	s.client = scoped
	s.project = p
	s.log = s.log.With(zap.String("project", p.Name))

	switch dataset.Backend(s.cfg.Dataset.Backend) {
	case dataset.BackendS3:
		c := s.cfg.Dataset.S3
		store, err := s3.New(ctx, s3.Config{
			Bucket:          c.Bucket,
			Prefix:          c.Prefix,
			Region:          c.Region,
			Endpoint:        c.Endpoint,
			Profile:         c.Profile,
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			ForcePathStyle:  c.ForcePathStyle,
		}, s.log)
		if err != nil {
			return nil, exitError(ExitConfigError, "Failed to open S3 dataset store", err)
		}
		s.store = store
	default:
		s.store = dataset.NewAPI(s.client, dataset.WithLogger(s.log))
	}
	return s, nil
}

// absPath resolves a dataset path relative to the project.
func (s *session) absPath(p string) string {
	return dataset.AbsPath(s.project.Name, p)
}

// track opens a ledger record for an operation the command is about to drive.
func (s *session) track(kind operation.Kind, name, action string) *opledger.Record {
	rec := opledger.NewRecord(kind, name, action)
	s.save(rec)
	return rec
}

// save writes rec; ledger failures never fail the command.
func (s *session) save(rec *opledger.Record) {
	if err := s.ledger.Write(rec); err != nil {
		s.log.Warn("Failed to write operation record", zap.String("op_id", rec.ID), zap.Error(err))
	}
}

// recordGit is the git engine finish hook.
func (s *session) recordGit(action git.Action, op git.OpExecution, err error) {
	name := ""
	if op.Repository != nil {
		name = op.Repository.Name
	}
	rec := opledger.NewRecord(operation.KindGit, name, action.String())
	if !op.SubmittedAt.IsZero() {
		rec.CreatedAt = op.SubmittedAt.UTC()
	}
	if op.ID != 0 {
		rec.RemoteID = strconv.Itoa(op.ID)
	}
	rec.Finish(op.Outcome(), op.State, err)
	s.save(rec)
}

func (s *session) gitRepos() *git.Repos {
	return git.NewRepos(s.client,
		git.WithLogger(s.log),
		git.WithPolicy(operation.Policy{Interval: s.cfg.Wait.PollInterval, Budget: operation.Unbounded}),
		git.WithFinishHook(s.recordGit))
}

// platformError picks an exit code for an error returned by the platform.
func platformError(message string, err error) error {
	switch {
	case client.IsNotFound(err), operation.IsNotFound(err), dataset.IsNotFound(err):
		return exitError(ExitNotFound, message, err)
	case operation.IsFailed(err):
		return exitError(ExitOperationFailed, message, err)
	case client.IsRestAPIError(err):
		return exitError(ExitFailure, message, err)
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, message, err)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func lookupEnv(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
