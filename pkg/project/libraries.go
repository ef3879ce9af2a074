package project

import (
	"context"
	"net/http"

	"github.com/3leaps/gohops/pkg/client"
)

// Library is a Python library of a project environment.
type Library struct {
	Name          string `json:"library"`
	Version       string `json:"version,omitempty"`
	Channel       string `json:"channel,omitempty"`
	PackageSource string `json:"packageSource,omitempty"`
}

// Libraries manages the Python environment of a project.
type Libraries struct {
	client *client.Client
}

// NewLibraries creates a libraries API bound to the client's project.
func NewLibraries(c *client.Client) *Libraries {
	return &Libraries{client: c}
}

// Install asks the platform to install a library into the environment of the
// given Python version. spec carries the install options (version, channel,
// packageSource, ...). Installation continues asynchronously on the platform.
func (l *Libraries) Install(ctx context.Context, pythonVersion, name string, spec map[string]any) (Library, error) {
	if spec == nil {
		spec = map[string]any{}
	}
	var lib Library
	err := l.client.Do(ctx, client.Request{
		Method: http.MethodPost,
		Path:   l.client.ProjectPath("python", "environments", pythonVersion, "libraries", name),
		Body:   spec,
	}, &lib)
	if err != nil {
		return Library{}, err
	}
	return lib, nil
}
