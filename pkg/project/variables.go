package project

import (
	"context"
	"fmt"

	"github.com/3leaps/gohops/pkg/client"
	"github.com/3leaps/gohops/pkg/operation"
)

// Variables reads platform configuration variables.
type Variables struct {
	client *client.Client
}

// NewVariables creates a variables API.
func NewVariables(c *client.Client) *Variables {
	return &Variables{client: c}
}

type variableResponse struct {
	SuccessMessage string `json:"successMessage"`
}

type versionEntry struct {
	Software string `json:"software"`
	Version  string `json:"version"`
}

// GetVariable returns the configured value of a variable.
func (v *Variables) GetVariable(ctx context.Context, name string) (string, error) {
	var resp variableResponse
	if err := v.client.Do(ctx, client.Request{Path: []string{"variables", name}}, &resp); err != nil {
		return "", err
	}
	return resp.SuccessMessage, nil
}

// GetVersion returns the version of a platform component, e.g. "hopsworks".
func (v *Variables) GetVersion(ctx context.Context, software string) (string, error) {
	var entries []versionEntry
	if err := v.client.Do(ctx, client.Request{Path: []string{"variables", "versions"}}, &entries); err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Software == software {
			return e.Version, nil
		}
	}
	return "", fmt.Errorf("version of %s: %w", software, operation.ErrNotFound)
}
