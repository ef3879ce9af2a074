package dataset

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/gohops/pkg/client"
)

// API implements Store over the platform dataset endpoints.
type API struct {
	client *client.Client
	log    *zap.Logger
}

// Ensure API implements Store.
var _ Store = (*API)(nil)

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger used for download progress.
func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

// NewAPI creates a dataset API bound to the client's project.
func NewAPI(c *client.Client, opts ...Option) *API {
	a := &API{client: c, log: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type entryResponse struct {
	Attributes struct {
		Name             string `json:"name"`
		Path             string `json:"path"`
		Size             int64  `json:"size"`
		Dir              bool   `json:"dir"`
		Owner            string `json:"owner"`
		ModificationTime string `json:"modificationTime"`
	} `json:"attributes"`
}

// Get returns the metadata of path.
func (a *API) Get(ctx context.Context, path string) (*Entry, error) {
	var resp entryResponse
	err := a.client.Do(ctx, client.Request{
		Path:   a.client.ProjectPath("dataset", path),
		Header: http.Header{"Content-Type": {"application/json"}},
	}, &resp)
	if err != nil {
		return nil, a.wrapError("Get", path, err)
	}

	e := &Entry{
		Path:  resp.Attributes.Path,
		Name:  resp.Attributes.Name,
		Size:  resp.Attributes.Size,
		Dir:   resp.Attributes.Dir,
		Owner: resp.Attributes.Owner,
	}
	if e.Path == "" {
		e.Path = path
	}
	if t, err := time.Parse(time.RFC3339, resp.Attributes.ModificationTime); err == nil {
		e.ModifiedAt = t
	}
	return e, nil
}

// Exists reports whether path exists. Any platform error response counts as
// "does not exist"; transport failures are returned.
func (a *API) Exists(ctx context.Context, path string) (bool, error) {
	_, err := a.Get(ctx, path)
	if err == nil {
		return true, nil
	}
	if client.IsRestAPIError(err) {
		return false, nil
	}
	return false, err
}

// Download streams path into localDir.
func (a *API) Download(ctx context.Context, path, localDir string, overwrite bool) (string, error) {
	target, err := LocalTarget(path, localDir, overwrite)
	if err != nil {
		return "", err
	}

	entry, err := a.Get(ctx, path)
	if err != nil {
		return "", err
	}

	body, _, err := a.client.Stream(ctx, client.Request{
		Path:  a.client.ProjectPath("dataset", "download", "with_auth", path),
		Query: url.Values{"type": {"DATASET"}},
	})
	if err != nil {
		return "", a.wrapError("Download", path, err)
	}
	defer func() { _ = body.Close() }()

	start := time.Now()
	n, err := WriteFile(target, body)
	if err != nil {
		return "", &StoreError{Op: "Download", Backend: BackendREST, Path: path, Err: err}
	}
	if entry.Size > 0 && n != entry.Size {
		a.log.Warn("Downloaded size differs from dataset metadata",
			zap.String("path", path),
			zap.Int64("expected_bytes", entry.Size),
			zap.Int64("bytes", n))
	}

	a.log.Debug("Downloaded dataset file",
		zap.String("path", path),
		zap.String("local_path", target),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)))
	return target, nil
}

// Remove deletes path.
func (a *API) Remove(ctx context.Context, path string) error {
	err := a.client.Do(ctx, client.Request{
		Method: http.MethodDelete,
		Path:   a.client.ProjectPath("dataset", path),
	}, nil)
	return a.wrapError("Remove", path, err)
}

// Mkdir creates the directory path.
func (a *API) Mkdir(ctx context.Context, path string) error {
	err := a.client.Do(ctx, client.Request{
		Method: http.MethodPost,
		Path:   a.client.ProjectPath("dataset", path),
		Query:  url.Values{"action": {"create"}},
	}, nil)
	return a.wrapError("Mkdir", path, err)
}

// wrapError converts client errors to store errors with dataset sentinels.
func (a *API) wrapError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := &StoreError{Op: op, Backend: BackendREST, Path: path, Err: err}

	switch {
	case errors.Is(err, client.ErrNotFound):
		wrapped.Err = fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, client.ErrUnauthorized):
		wrapped.Err = fmt.Errorf("%w: %w", ErrAccessDenied, err)
	case errors.Is(err, client.ErrServer):
		wrapped.Err = fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return wrapped
}
