// Package project wraps the project-level endpoints of the platform: project
// lookup and creation, platform variables, Python libraries and the search
// service credentials.
package project

import (
	"context"
	"net/http"
	"net/url"

	"github.com/3leaps/gohops/pkg/client"
)

// DefaultServices are enabled on projects created by CreateProject.
var DefaultServices = []string{"JOBS", "KAFKA", "JUPYTER", "HIVE", "SERVING", "FEATURESTORE"}

// Project describes a platform project.
type Project struct {
	ID          int    `json:"projectId"`
	Name        string `json:"projectName"`
	Owner       string `json:"owner,omitempty"`
	Description string `json:"description,omitempty"`
	Created     string `json:"created,omitempty"`
}

// Ref returns the identity used to scope a client to the project.
func (p Project) Ref() client.Project {
	return client.Project{ID: p.ID, Name: p.Name}
}

// API looks up and creates projects. It does not need a project-scoped
// client.
type API struct {
	client *client.Client
}

// NewAPI creates a project API.
func NewAPI(c *client.Client) *API {
	return &API{client: c}
}

// GetProject returns the project called name.
func (a *API) GetProject(ctx context.Context, name string) (Project, error) {
	var p Project
	err := a.client.Do(ctx, client.Request{
		Path: []string{"project", "asShared", "getProjectInfo", name},
	}, &p)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// Exists reports whether a project called name is visible to the caller.
// Any platform error response counts as "does not exist".
func (a *API) Exists(ctx context.Context, name string) (bool, error) {
	_, err := a.GetProject(ctx, name)
	if err == nil {
		return true, nil
	}
	if client.IsRestAPIError(err) {
		return false, nil
	}
	return false, err
}

// CreateProject creates a project with DefaultServices and returns it.
func (a *API) CreateProject(ctx context.Context, name, description string) (Project, error) {
	err := a.client.Do(ctx, client.Request{
		Method: http.MethodPost,
		Path:   []string{"project"},
		Query:  url.Values{"projectName": {name}},
		Body: map[string]any{
			"projectName": name,
			"services":    DefaultServices,
			"description": description,
		},
	}, nil)
	if err != nil {
		return Project{}, err
	}
	return a.GetProject(ctx, name)
}

// Scope returns a copy of c bound to the project called name.
func (a *API) Scope(ctx context.Context, c *client.Client, name string) (*client.Client, Project, error) {
	p, err := a.GetProject(ctx, name)
	if err != nil {
		return nil, Project{}, err
	}
	return c.WithProject(p.Ref()), p, nil
}
