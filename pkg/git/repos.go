package git

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/3leaps/gohops/pkg/client"
	"github.com/3leaps/gohops/pkg/dataset"
	"github.com/3leaps/gohops/pkg/operation"
)

// Repos manages the git repositories of a project.
type Repos struct {
	client *client.Client
	engine *Engine
}

// NewRepos creates a repository API bound to the client's project.
func NewRepos(c *client.Client, opts ...Option) *Repos {
	return &Repos{client: c, engine: NewEngine(c, opts...)}
}

// Engine returns the engine used to await commands.
func (r *Repos) Engine() *Engine {
	return r.engine
}

// GetRepos lists all repositories of the project.
func (r *Repos) GetRepos(ctx context.Context) ([]Repo, error) {
	var resp itemsResponse[Repo]
	err := r.client.Do(ctx, client.Request{
		Path:  r.client.ProjectPath("git"),
		Query: url.Values{"expand": {"creator"}},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// GetRepo returns the single repository called name. When path is set only
// repositories at that path match; relative paths are resolved against the
// project root. Zero matches return operation.ErrNotFound, several return
// operation.ErrAmbiguous.
func (r *Repos) GetRepo(ctx context.Context, name, path string) (Repo, error) {
	repos, err := r.GetRepos(ctx)
	if err != nil {
		return Repo{}, err
	}
	if path != "" {
		path = dataset.AbsPath(r.client.Project().Name, path)
	}

	var matches []Repo
	for _, repo := range repos {
		if repo.Name != name {
			continue
		}
		if path == "" || repo.Path == path {
			matches = append(matches, repo)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return Repo{}, fmt.Errorf("no git repository found matching name %q: %w", name, operation.ErrNotFound)
	default:
		return Repo{}, fmt.Errorf("multiple repositories found matching name %q, specify the repository path: %w",
			name, operation.ErrAmbiguous)
	}
}

type cloneConfig struct {
	URL      string  `json:"url"`
	Path     string  `json:"path"`
	Provider string  `json:"provider"`
	Branch   *string `json:"branch"`
}

// Clone clones url into path and returns the new repository.
func (r *Repos) Clone(ctx context.Context, repoURL, path, provider, branch string) (Repo, error) {
	cfg := cloneConfig{
		URL:      repoURL,
		Path:     dataset.AbsPath(r.client.Project().Name, path),
		Provider: provider,
	}
	if branch != "" {
		cfg.Branch = &branch
	}

	op, err := r.submit(ctx, 0, r.client.ProjectPath("git", "clone"),
		url.Values{"expand": {"repository", "user"}}, cfg, ActionClone)
	if err != nil {
		return Repo{}, err
	}
	if op.Repository == nil {
		return Repo{}, fmt.Errorf("clone execution %d carries no repository", op.ID)
	}
	return r.GetRepo(ctx, op.Repository.Name, op.Repository.Path)
}

// CreateBranch creates branch, optionally checking it out.
func (r *Repos) CreateBranch(ctx context.Context, repoID int, branch string, checkout bool) error {
	action := ActionCreate
	if checkout {
		action = ActionCreateCheckout
	}
	_, err := r.submit(ctx, repoID, r.branchPath(repoID), url.Values{
		"action":     {action.String()},
		"branchName": {branch},
		"expand":     {"repository"},
	}, nil, action)
	return err
}

// DeleteBranch deletes branch.
func (r *Repos) DeleteBranch(ctx context.Context, repoID int, branch string) error {
	_, err := r.submit(ctx, repoID, r.branchPath(repoID), url.Values{
		"action":     {ActionDelete.String()},
		"branchName": {branch},
		"expand":     {"repository"},
	}, nil, ActionDelete)
	return err
}

// Checkout checks out branch or commit.
func (r *Repos) Checkout(ctx context.Context, repoID int, branch, commit string, force bool) error {
	action := ActionCheckout
	if force {
		action = ActionCheckoutForce
	}
	q := url.Values{
		"action": {action.String()},
		"expand": {"repository"},
	}
	if branch != "" {
		q.Set("branchName", branch)
	}
	if commit != "" {
		q.Set("commit", commit)
	}
	_, err := r.submit(ctx, repoID, r.branchPath(repoID), q, nil, action)
	return err
}

// Status returns the working tree status.
func (r *Repos) Status(ctx context.Context, repoID int) (StatusPayload, error) {
	op, err := r.submit(ctx, repoID, r.repoPath(repoID), url.Values{
		"action": {ActionStatus.String()},
		"expand": {"repository", "user"},
	}, struct{}{}, ActionStatus)
	if err != nil {
		return StatusPayload{}, err
	}
	payload, err := ParseStatus(op.CommandResultMessage)
	if err != nil {
		return StatusPayload{}, operation.Wrap(operation.KindGit, "status", strconv.Itoa(op.ID), err)
	}
	return payload, nil
}

type commitConfig struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	All     bool     `json:"all"`
	Files   []string `json:"files"`
}

// Commit commits the given files, or every tracked change when all is set.
func (r *Repos) Commit(ctx context.Context, repoID int, message string, all bool, files []string) error {
	_, err := r.submit(ctx, repoID, r.repoPath(repoID), url.Values{
		"action": {ActionCommit.String()},
		"expand": {"repository", "user"},
	}, commitConfig{
		Type:    "commitCommandConfiguration",
		Message: message,
		All:     all,
		Files:   files,
	}, ActionCommit)
	return err
}

type remoteConfig struct {
	Type       string `json:"type"`
	RemoteName string `json:"remoteName"`
	Force      bool   `json:"force"`
	BranchName string `json:"branchName"`
}

// Push pushes branch to remote.
func (r *Repos) Push(ctx context.Context, repoID int, remote, branch string, force bool) error {
	_, err := r.submit(ctx, repoID, r.repoPath(repoID), url.Values{
		"action": {ActionPush.String()},
		"expand": {"repository", "user"},
	}, remoteConfig{
		Type:       "pushCommandConfiguration",
		RemoteName: remote,
		Force:      force,
		BranchName: branch,
	}, ActionPush)
	return err
}

// Pull pulls branch from remote.
func (r *Repos) Pull(ctx context.Context, repoID int, remote, branch string, force bool) error {
	_, err := r.submit(ctx, repoID, r.repoPath(repoID), url.Values{
		"action": {ActionPull.String()},
		"expand": {"repository", "user"},
	}, remoteConfig{
		Type:       "pullCommandConfiguration",
		RemoteName: remote,
		Force:      force,
		BranchName: branch,
	}, ActionPull)
	return err
}

// CheckoutFiles discards local changes of files.
func (r *Repos) CheckoutFiles(ctx context.Context, repoID int, files []string) error {
	if files == nil {
		files = []string{}
	}
	_, err := r.submit(ctx, repoID,
		r.client.ProjectPath("git", "repository", strconv.Itoa(repoID), "file"),
		url.Values{"expand": {"repository", "user"}},
		map[string][]string{"files": files}, ActionCheckoutFiles)
	return err
}

// GetCommits returns the history of branch.
func (r *Repos) GetCommits(ctx context.Context, repoID int, branch string) ([]Commit, error) {
	var resp itemsResponse[Commit]
	err := r.client.Do(ctx, client.Request{
		Path: r.client.ProjectPath("git", "repository", strconv.Itoa(repoID), "branch", branch, "commit"),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// GetProviders lists the git providers configured for the current user.
func (r *Repos) GetProviders(ctx context.Context) ([]ProviderCredentials, error) {
	var resp itemsResponse[ProviderCredentials]
	err := r.client.Do(ctx, client.Request{
		Path: []string{"users", "git", "provider"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// GetProvider returns the configuration of provider.
func (r *Repos) GetProvider(ctx context.Context, provider string) (ProviderCredentials, error) {
	providers, err := r.GetProviders(ctx)
	if err != nil {
		return ProviderCredentials{}, err
	}
	for _, p := range providers {
		if p.Provider == provider {
			return p, nil
		}
	}
	return ProviderCredentials{}, fmt.Errorf("no git provider configured for %q: %w", provider, operation.ErrNotFound)
}

// SetProvider stores credentials for provider.
func (r *Repos) SetProvider(ctx context.Context, provider, username, token string) error {
	return r.client.Do(ctx, client.Request{
		Method: http.MethodPost,
		Path:   []string{"users", "git", "provider"},
		Body:   ProviderCredentials{Provider: provider, Username: username, Token: token},
	}, nil)
}

func (r *Repos) repoPath(repoID int) []string {
	return r.client.ProjectPath("git", "repository", strconv.Itoa(repoID))
}

func (r *Repos) branchPath(repoID int) []string {
	return r.client.ProjectPath("git", "repository", strconv.Itoa(repoID), "branch")
}

// submit posts a git command and blocks until it finishes.
func (r *Repos) submit(ctx context.Context, repoID int, path []string, q url.Values, body any, action Action) (OpExecution, error) {
	var op OpExecution
	err := r.client.Do(ctx, client.Request{
		Method: http.MethodPost,
		Path:   path,
		Query:  q,
		Body:   body,
	}, &op)
	if err != nil {
		return OpExecution{}, operation.Wrap(operation.KindGit, "submit "+action.String(), "", err)
	}
	if op.Repository == nil && repoID != 0 {
		op.Repository = &Repo{ID: repoID}
	}
	return r.engine.ExecuteBlocking(ctx, op, action)
}
