// Package client sends authenticated requests to the platform REST API.
//
// A Client is constructed explicitly and handed to every API wrapper and
// coordinator; there is no process-wide instance. Clients are safe for
// concurrent use.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a single HTTP round trip.
	DefaultTimeout = 60 * time.Second

	// APIRoot is the path prefix served by the platform.
	APIRoot = "hopsworks-api"

	// APIBasePath is prepended to every request path unless Request.NoBasePath is set.
	APIBasePath = APIRoot + "/api"

	// RequestIDHeader carries a per-request correlation id.
	RequestIDHeader = "X-Request-ID"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the platform endpoint, e.g. https://platform.example.com:443 (required).
	BaseURL string

	// APIKey is sent as "Authorization: ApiKey <key>".
	APIKey string

	// Timeout bounds each HTTP round trip. Zero uses DefaultTimeout.
	Timeout time.Duration

	// RateLimit caps requests per second. Zero disables pacing.
	RateLimit float64

	// UserAgent overrides the default user agent.
	UserAgent string

	// HTTPClient replaces the default HTTP client (tests, custom TLS).
	HTTPClient *http.Client
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("client config: base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("client config: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("client config: base url must be http or https, got %q", u.Scheme)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("client config: rate limit must be >= 0")
	}
	return nil
}

// Project identifies the project all project-scoped calls are addressed to.
type Project struct {
	ID   int
	Name string
}

// Client sends requests to the platform.
type Client struct {
	baseURL   *url.URL
	apiKey    string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	project   Project
}

// New creates a client from cfg.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u, _ := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "gohops"
	}

	c := &Client{
		baseURL:   u,
		apiKey:    cfg.APIKey,
		userAgent: userAgent,
		http:      httpClient,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// WithProject returns a copy of the client scoped to p.
func (c *Client) WithProject(p Project) *Client {
	cp := *c
	cp.project = p
	return &cp
}

// Project returns the project the client is scoped to.
func (c *Client) Project() Project {
	return c.project
}

// ProjectPath returns ["project", <id>, segments...].
func (c *Client) ProjectPath(segments ...string) []string {
	out := make([]string, 0, len(segments)+2)
	out = append(out, "project", strconv.Itoa(c.project.ID))
	return append(out, segments...)
}

// BaseURL returns the platform endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Request describes one call to the platform.
type Request struct {
	Method string

	// Path segments; each segment may itself contain slashes (dataset paths).
	Path []string

	Query  url.Values
	Header http.Header

	// Body is JSON-encoded when set.
	Body any

	// RawBody is sent as-is with ContentType; it takes precedence over Body.
	RawBody     io.Reader
	ContentType string

	// NoBasePath addresses APIRoot/<path> instead of APIBasePath/<path>.
	NoBasePath bool
}

// Do sends req and decodes a JSON response into out (when out is non-nil).
// Non-2xx responses return a *RestAPIError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response from %s: %w", resp.Request.URL.Path, err)
	}
	return nil
}

// Stream sends req and returns the response body for the caller to consume.
// The caller must close the returned reader. size is -1 when unknown.
func (c *Client) Stream(ctx context.Context, req Request) (body io.ReadCloser, size int64, err error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

func (c *Client) send(ctx context.Context, req Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", httpReq.Method, httpReq.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		return nil, newRestAPIError(httpReq, resp)
	}
	return resp, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u := *c.baseURL
	root := APIBasePath
	if req.NoBasePath {
		root = APIRoot
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + root + "/" + joinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var (
		body        io.Reader
		contentType = req.ContentType
	)
	switch {
	case req.RawBody != nil:
		body = req.RawBody
	case req.Body != nil:
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "ApiKey "+c.apiKey)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(RequestIDHeader, uuid.New().String())
	return httpReq, nil
}

func newRestAPIError(req *http.Request, resp *http.Response) *RestAPIError {
	apiErr := &RestAPIError{
		Method:     req.Method,
		URL:        req.URL.Path,
		StatusCode: resp.StatusCode,
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.ErrorCode = body.ErrorCode
		apiErr.Message = body.ErrorMsg
		apiErr.UserMessage = body.UserMessage
		apiErr.DevMessage = body.DevMessage
	} else if msg := strings.TrimSpace(string(data)); msg != "" {
		apiErr.Message = msg
	}
	return apiErr
}

// joinPath escapes each path element while keeping the slashes of segments
// that carry nested paths.
func joinPath(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		for _, p := range strings.Split(seg, "/") {
			if p == "" {
				continue
			}
			parts = append(parts, url.PathEscape(p))
		}
	}
	return strings.Join(parts, "/")
}
