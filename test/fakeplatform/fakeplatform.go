// Package fakeplatform provides a scripted stand-in for the platform REST API.
//
// Tests register handlers for the endpoints they exercise, usually built from
// Sequence so that each poll observes the next scripted snapshot. Dataset
// existence can be scripted per path to drive artifact-readiness waits.
//
// Usage:
//
//	func TestWait(t *testing.T) {
//	    fake := fakeplatform.New(t)
//	    fake.Handle(http.MethodGet, "/project/{projectID}/jobs/{job}/executions/{id}",
//	        fakeplatform.Sequence(running, running, finished))
//	    c := fake.Client(t)
//	    // ... test code ...
//	}
package fakeplatform

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/3leaps/gohops/pkg/client"
)

const (
	// ProjectID is the id of the project every fake client is scoped to.
	ProjectID = 119

	// ProjectName is the name of the fake project.
	ProjectName = "demo"

	// APIKey is the only key the fake accepts.
	APIKey = "fake-api-key"

	apiPrefix  = "/" + client.APIBasePath
	rootPrefix = "/" + client.APIRoot
)

// Server is a scripted fake platform.
type Server struct {
	srv    *httptest.Server
	router chi.Router

	mu       sync.Mutex
	hits     map[string]int
	datasets map[string]*datasetScript
}

type datasetScript struct {
	exists  []bool
	calls   int
	content []byte
}

// New starts a fake platform that is shut down when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		router:   chi.NewRouter(),
		hits:     make(map[string]int),
		datasets: make(map[string]*datasetScript),
	}
	s.router.Use(s.count, requireAPIKey)
	s.router.Get(apiPrefix+"/project/{projectID}/dataset/download/with_auth/*", s.downloadDataset)
	s.router.Get(apiPrefix+"/project/{projectID}/dataset/*", s.getDataset)
	s.router.Delete(apiPrefix+"/project/{projectID}/dataset/*", s.removeDataset)

	s.srv = httptest.NewServer(s.router)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the base URL of the fake.
func (s *Server) URL() string {
	return s.srv.URL
}

// Client returns a client scoped to the fake project.
func (s *Server) Client(t testing.TB) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{BaseURL: s.srv.URL, APIKey: APIKey})
	if err != nil {
		t.Fatalf("fakeplatform: create client: %v", err)
	}
	return c.WithProject(client.Project{ID: ProjectID, Name: ProjectName})
}

// Handle registers h for method and pattern under the API base path,
// e.g. "/project/{projectID}/jobs/{job}".
func (s *Server) Handle(method, pattern string, h http.HandlerFunc) {
	s.router.MethodFunc(method, apiPrefix+pattern, h)
}

// HandleRoot registers h for method and pattern under the API root, for
// endpoints addressed without the base path (the flinkmaster proxy).
func (s *Server) HandleRoot(method, pattern string, h http.HandlerFunc) {
	s.router.MethodFunc(method, rootPrefix+pattern, h)
}

// Hits returns how many requests reached method and path. path is relative
// to the API base path, e.g. "/project/119/jobs/etl".
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+apiPrefix+path]
}

// RootHits is Hits for paths under the API root.
func (s *Server) RootHits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+rootPrefix+path]
}

// SetDataset registers a dataset file that always exists.
func (s *Server) SetDataset(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[normalize(path)] = &datasetScript{content: content}
}

// ScriptExists scripts the answers to successive existence checks of path.
// Once the script is exhausted the last answer repeats.
func (s *Server) ScriptExists(path string, answers ...bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasets[normalize(path)]
	if !ok {
		d = &datasetScript{}
		s.datasets[normalize(path)] = d
	}
	d.exists = answers
	d.calls = 0
}

// DatasetChecks returns how many metadata requests were made for path.
func (s *Server) DatasetChecks(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.datasets[normalize(path)]; ok {
		return d.calls
	}
	return 0
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "ApiKey "+APIKey {
			Error(w, http.StatusUnauthorized, 200003, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	path := normalize(chi.URLParam(r, "*"))

	s.mu.Lock()
	d, ok := s.datasets[path]
	exists := ok
	if ok {
		if len(d.exists) > 0 {
			i := d.calls
			if i >= len(d.exists) {
				i = len(d.exists) - 1
			}
			exists = d.exists[i]
		}
		d.calls++
	}
	var size int
	if ok {
		size = len(d.content)
	}
	s.mu.Unlock()

	if !exists {
		Error(w, http.StatusNotFound, 110018, "Dataset not found")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"attributes": map[string]any{
			"name": path[strings.LastIndex(path, "/")+1:],
			"path": path,
			"size": size,
			"dir":  false,
		},
	})
}

func (s *Server) downloadDataset(w http.ResponseWriter, r *http.Request) {
	path := normalize(chi.URLParam(r, "*"))

	s.mu.Lock()
	d, ok := s.datasets[path]
	var content []byte
	if ok {
		content = d.content
	}
	s.mu.Unlock()

	if !ok {
		Error(w, http.StatusNotFound, 110018, "Dataset not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	_, _ = w.Write(content)
}

func (s *Server) removeDataset(w http.ResponseWriter, r *http.Request) {
	path := normalize(chi.URLParam(r, "*"))

	s.mu.Lock()
	_, ok := s.datasets[path]
	delete(s.datasets, path)
	s.mu.Unlock()

	if !ok {
		Error(w, http.StatusNotFound, 110018, "Dataset not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sequence returns a handler that answers successive calls with the given
// bodies encoded as JSON. Once exhausted the last body repeats.
func Sequence(bodies ...any) http.HandlerFunc {
	var (
		mu    sync.Mutex
		calls int
	)
	return func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		i := calls
		if i >= len(bodies) {
			i = len(bodies) - 1
		}
		calls++
		mu.Unlock()

		if i < 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		JSON(w, http.StatusOK, bodies[i])
	}
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a platform error envelope.
func Error(w http.ResponseWriter, status, code int, msg string) {
	JSON(w, status, map[string]any{
		"errorCode": code,
		"errorMsg":  msg,
	})
}

func normalize(path string) string {
	return "/" + strings.TrimLeft(path, "/")
}
