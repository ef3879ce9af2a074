// Package config loads the gohops configuration from defaults, an optional
// YAML file, GOHOPS_* environment variables and runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the config and data directories.
	AppName = "gohops"

	// EnvPrefix prefixes every environment variable the loader reads.
	EnvPrefix = "GOHOPS"

	// ConfigFileEnv points at an explicit config file.
	ConfigFileEnv = EnvPrefix + "_CONFIG"
)

// Config is the effective gohops configuration.
type Config struct {
	Platform PlatformConfig `mapstructure:"platform"`
	Wait     WaitConfig     `mapstructure:"wait"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
}

// PlatformConfig addresses the platform.
type PlatformConfig struct {
	URL       string        `mapstructure:"url"`
	APIKey    string        `mapstructure:"api_key"`
	Project   string        `mapstructure:"project"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	UserAgent string        `mapstructure:"user_agent"`
}

// WaitConfig tunes the remote operation waits.
type WaitConfig struct {
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	LogAggregationBudget int           `mapstructure:"log_aggregation_budget"`
	ClusterStartBudget   int           `mapstructure:"cluster_start_budget"`
}

// LoggingConfig selects the CLI logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// DatasetConfig selects the dataset store used for log checks and downloads.
type DatasetConfig struct {
	Backend string   `mapstructure:"backend"`
	S3      S3Config `mapstructure:"s3"`
}

// S3Config configures the S3 dataset backend.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// LedgerConfig locates the local operation ledger.
type LedgerConfig struct {
	Dir string `mapstructure:"dir"`
}

// EnvSpec maps an environment variable to a config key.
type EnvSpec struct {
	Name string
	Key  string
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

var envSpecs = []EnvSpec{
	{Name: "URL", Key: "platform.url"},
	{Name: "API_KEY", Key: "platform.api_key"},
	{Name: "PROJECT", Key: "platform.project"},
	{Name: "TIMEOUT", Key: "platform.timeout"},
	{Name: "RATE_LIMIT", Key: "platform.rate_limit"},
	{Name: "USER_AGENT", Key: "platform.user_agent"},
	{Name: "POLL_INTERVAL", Key: "wait.poll_interval"},
	{Name: "LOG_AGGREGATION_BUDGET", Key: "wait.log_aggregation_budget"},
	{Name: "CLUSTER_START_BUDGET", Key: "wait.cluster_start_budget"},
	{Name: "LOG_LEVEL", Key: "logging.level"},
	{Name: "LOG_PROFILE", Key: "logging.profile"},
	{Name: "DATASET_BACKEND", Key: "dataset.backend"},
	{Name: "S3_BUCKET", Key: "dataset.s3.bucket"},
	{Name: "S3_PREFIX", Key: "dataset.s3.prefix"},
	{Name: "S3_REGION", Key: "dataset.s3.region"},
	{Name: "S3_ENDPOINT", Key: "dataset.s3.endpoint"},
	{Name: "S3_PROFILE", Key: "dataset.s3.profile"},
	{Name: "S3_FORCE_PATH_STYLE", Key: "dataset.s3.force_path_style"},
	{Name: "LEDGER_DIR", Key: "ledger.dir"},
}

// EnvSpecs returns the environment variables the loader reads.
func EnvSpecs() []EnvSpec {
	out := make([]EnvSpec, len(envSpecs))
	for i, s := range envSpecs {
		out[i] = EnvSpec{Name: EnvPrefix + "_" + s.Name, Key: s.Key}
	}
	return out
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("platform.timeout", "60s")
	v.SetDefault("platform.rate_limit", 0)
	v.SetDefault("platform.user_agent", AppName)

	v.SetDefault("wait.poll_interval", "3s")
	v.SetDefault("wait.log_aggregation_budget", 40)
	v.SetDefault("wait.cluster_start_budget", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "console")

	v.SetDefault("dataset.backend", "rest")
	v.SetDefault("ledger.dir", DefaultLedgerDir())
}

// Load builds the configuration. Precedence: runtime overrides > environment
// > config file > defaults. The result is also returned by GetConfig.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	for _, spec := range EnvSpecs() {
		if err := v.BindEnv(spec.Key, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the configuration of the last successful Load, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Wait.PollInterval <= 0 {
		return fmt.Errorf("wait.poll_interval must be positive")
	}
	if c.Wait.LogAggregationBudget < 0 {
		return fmt.Errorf("wait.log_aggregation_budget must be >= 0")
	}
	if c.Wait.ClusterStartBudget < 0 {
		return fmt.Errorf("wait.cluster_start_budget must be >= 0")
	}
	switch c.Dataset.Backend {
	case "rest", "s3":
	default:
		return fmt.Errorf("dataset.backend must be rest or s3, got %q", c.Dataset.Backend)
	}
	return nil
}

func readConfigFile(v *viper.Viper) error {
	v.SetConfigType("yaml")

	if explicit := strings.TrimSpace(os.Getenv(ConfigFileEnv)); explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicit, err)
		}
		return nil
	}

	paths := userConfigPaths()
	if len(paths) == 0 {
		return nil
	}
	v.SetConfigName("config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func userConfigPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, AppName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+AppName))
	}
	return paths
}

// DefaultLedgerDir returns the default location of the operation ledger, a
// directory under the platform data dir of the app.
func DefaultLedgerDir() string {
	return filepath.Join(gfconfig.GetAppDataDir(AppName), "ops")
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
