package project

import (
	"context"
	"strconv"
	"strings"

	"github.com/3leaps/gohops/pkg/client"
)

// OpenSearch gives access to the project's search service.
type OpenSearch struct {
	client *client.Client
}

// NewOpenSearch creates a search API bound to the client's project.
func NewOpenSearch(c *client.Client) *OpenSearch {
	return &OpenSearch{client: c}
}

// ProjectIndex returns the project-scoped name of index.
func (o *OpenSearch) ProjectIndex(index string) string {
	return strings.ToLower(o.client.Project().Name + "_" + index)
}

// AuthorizationToken returns a JWT for the search service.
func (o *OpenSearch) AuthorizationToken(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := o.client.Do(ctx, client.Request{
		Path: []string{"elastic", "jwt", strconv.Itoa(o.client.Project().ID)},
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}
