package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the developer's own config files and GOHOPS_* variables out
// of the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, EnvPrefix+"_") {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
	return home
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 60*time.Second, cfg.Platform.Timeout)
		assert.Equal(t, "gohops", cfg.Platform.UserAgent)
		assert.Zero(t, cfg.Platform.RateLimit)

		assert.Equal(t, 3*time.Second, cfg.Wait.PollInterval)
		assert.Equal(t, 40, cfg.Wait.LogAggregationBudget)
		assert.Equal(t, 120, cfg.Wait.ClusterStartBudget)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Profile)

		assert.Equal(t, "rest", cfg.Dataset.Backend)
		assert.Equal(t, DefaultLedgerDir(), cfg.Ledger.Dir)
		assert.Equal(t, filepath.Join(gfconfig.GetAppDataDir("gohops"), "ops"), cfg.Ledger.Dir)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"platform": map[string]any{
				"url":     "https://hops.example.com",
				"project": "demo",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "https://hops.example.com", cfg.Platform.URL)
		assert.Equal(t, "demo", cfg.Platform.Project)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Profile)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("GOHOPS_URL", "https://env.example.com")
		t.Setenv("GOHOPS_API_KEY", "secret")
		t.Setenv("GOHOPS_LOG_LEVEL", "warn")
		t.Setenv("GOHOPS_S3_FORCE_PATH_STYLE", "true")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "https://env.example.com", cfg.Platform.URL)
		assert.Equal(t, "secret", cfg.Platform.APIKey)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.True(t, cfg.Dataset.S3.ForcePathStyle)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolate(t)
		t.Setenv("GOHOPS_PROJECT", "from-env")

		cfg, err := Load(ctx, map[string]any{"platform": map[string]any{"project": "from-flag"}})
		require.NoError(t, err)
		assert.Equal(t, "from-flag", cfg.Platform.Project)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		home := isolate(t)
		path := filepath.Join(home, "gohops.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
platform:
  url: https://file.example.com
  project: from-file
wait:
  poll_interval: 10s
dataset:
  backend: s3
  s3:
    bucket: datasets
    region: eu-north-1
`), 0o644))
		t.Setenv(ConfigFileEnv, path)
		t.Setenv("GOHOPS_PROJECT", "from-env")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "https://file.example.com", cfg.Platform.URL)
		assert.Equal(t, "from-env", cfg.Platform.Project, "env wins over the file")
		assert.Equal(t, 10*time.Second, cfg.Wait.PollInterval)
		assert.Equal(t, "s3", cfg.Dataset.Backend)
		assert.Equal(t, "datasets", cfg.Dataset.S3.Bucket)
	})

	t.Run("UserConfigDir", func(t *testing.T) {
		home := isolate(t)
		dir := filepath.Join(home, ".gohops")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("platform:\n  project: dotdir\n"), 0o644))

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "dotdir", cfg.Platform.Project)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		home := isolate(t)
		t.Setenv(ConfigFileEnv, filepath.Join(home, "nope.yaml"))

		_, err := Load(ctx)
		require.Error(t, err)
	})

	t.Run("InvalidBackend", func(t *testing.T) {
		isolate(t)
		t.Setenv("GOHOPS_DATASET_BACKEND", "ftp")

		_, err := Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dataset.backend")
	})
}

func TestDurationParsing(t *testing.T) {
	isolate(t)
	t.Setenv("GOHOPS_POLL_INTERVAL", "500ms")
	t.Setenv("GOHOPS_TIMEOUT", "2m")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Wait.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Platform.Timeout)
}

func TestGetConfig(t *testing.T) {
	isolate(t)

	cfg, err := Load(context.Background(), map[string]any{"wait": map[string]any{"cluster_start_budget": 7}})
	require.NoError(t, err)

	current := GetConfig()
	require.NotNil(t, current)
	assert.Equal(t, cfg.Wait.ClusterStartBudget, current.Wait.ClusterStartBudget)
}

func TestEnvSpecs(t *testing.T) {
	specs := EnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]string)
	for _, spec := range specs {
		assert.True(t, strings.HasPrefix(spec.Name, "GOHOPS_"), spec.Name)
		assert.NotEmpty(t, spec.Key, "env var %s should have a key", spec.Name)
		names[spec.Name] = spec.Key
	}

	assert.Equal(t, "platform.url", names["GOHOPS_URL"])
	assert.Equal(t, "platform.api_key", names["GOHOPS_API_KEY"])
	assert.Equal(t, "platform.project", names["GOHOPS_PROJECT"])
	assert.Equal(t, "logging.level", names["GOHOPS_LOG_LEVEL"])
	assert.Equal(t, "wait.poll_interval", names["GOHOPS_POLL_INTERVAL"])
}
