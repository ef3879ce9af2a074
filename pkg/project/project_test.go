package project

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gohops/pkg/operation"
	"github.com/3leaps/gohops/test/fakeplatform"
)

func projectInfo(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "name") != fakeplatform.ProjectName {
		fakeplatform.Error(w, http.StatusNotFound, 150004, "project not found")
		return
	}
	fakeplatform.JSON(w, http.StatusOK, map[string]any{
		"projectId":   fakeplatform.ProjectID,
		"projectName": fakeplatform.ProjectName,
		"owner":       "meb10000",
	})
}

func TestGetProjectAndExists(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodGet, "/project/asShared/getProjectInfo/{name}", projectInfo)
	api := NewAPI(fake.Client(t))
	ctx := context.Background()

	p, err := api.GetProject(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, fakeplatform.ProjectID, p.ID)
	assert.Equal(t, "meb10000", p.Owner)

	ok, err := api.Exists(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = api.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateProject(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodGet, "/project/asShared/getProjectInfo/{name}", projectInfo)
	fake.Handle(http.MethodPost, "/project", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "demo", r.URL.Query().Get("projectName"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "demo", body["projectName"])
		assert.Equal(t, "scratch space", body["description"])
		assert.Len(t, body["services"], len(DefaultServices))
		w.WriteHeader(http.StatusCreated)
	})

	p, err := NewAPI(fake.Client(t)).CreateProject(context.Background(), "demo", "scratch space")
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name)
}

func TestScope(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodGet, "/project/asShared/getProjectInfo/{name}", projectInfo)
	base := fake.Client(t)

	scoped, p, err := NewAPI(base).Scope(context.Background(), base, "demo")
	require.NoError(t, err)
	assert.Equal(t, p.Ref(), scoped.Project())
}

func TestVariables(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodGet, "/variables/{name}", fakeplatform.Sequence(
		map[string]any{"successMessage": "3.10"},
	))
	fake.Handle(http.MethodGet, "/variables/versions", fakeplatform.Sequence([]map[string]any{
		{"software": "hopsworks", "version": "3.4.0"},
		{"software": "flink", "version": "1.17.1"},
	}))
	v := NewVariables(fake.Client(t))
	ctx := context.Background()

	val, err := v.GetVariable(ctx, "docker_base_image_python_version")
	require.NoError(t, err)
	assert.Equal(t, "3.10", val)

	ver, err := v.GetVersion(ctx, "flink")
	require.NoError(t, err)
	assert.Equal(t, "1.17.1", ver)

	_, err = v.GetVersion(ctx, "spark")
	assert.True(t, operation.IsNotFound(err))
}

func TestLibrariesInstall(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodPost, "/project/{projectID}/python/environments/{py}/libraries/{lib}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "PIP", body["packageSource"])
		fakeplatform.JSON(w, http.StatusCreated, map[string]any{
			"library":       "polars",
			"version":       "1.2.0",
			"packageSource": "PIP",
		})
	})

	lib, err := NewLibraries(fake.Client(t)).Install(context.Background(), "3.10", "polars", map[string]any{
		"packageSource": "PIP",
		"version":       "1.2.0",
	})
	require.NoError(t, err)
	assert.Equal(t, "polars", lib.Name)
	assert.Equal(t, 1, fake.Hits(http.MethodPost, "/project/119/python/environments/3.10/libraries/polars"))
}

func TestOpenSearch(t *testing.T) {
	fake := fakeplatform.New(t)
	fake.Handle(http.MethodGet, "/elastic/jwt/{projectID}", fakeplatform.Sequence(map[string]any{"token": "Bearer abc"}))
	search := NewOpenSearch(fake.Client(t))

	assert.Equal(t, "demo_logs_2024", search.ProjectIndex("Logs_2024"))

	token, err := search.AuthorizationToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", token)
	assert.Equal(t, 1, fake.Hits(http.MethodGet, "/elastic/jwt/119"))
}
