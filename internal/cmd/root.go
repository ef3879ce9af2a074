// Package cmd implements the gohops command line.
package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/3leaps/gohops/internal/config"
	"github.com/3leaps/gohops/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "gohops",
	Short: "Work with projects, jobs, git repositories and Flink clusters on the platform",
	Long: `gohops drives the platform from the command line.

Long-running operations (git commands, job executions, Flink cluster
startups) are submitted and then awaited until the platform reports an
outcome. Every awaited operation is recorded in a local ledger, see
'gohops ops'.

Configuration is read from ~/.config/gohops/config.yaml (or --config),
GOHOPS_* environment variables and flags, in increasing precedence.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"url":             "platform.url",
	"api-key":         "platform.api_key",
	"project":         "platform.project",
	"log-level":       "logging.level",
	"log-profile":     "logging.profile",
	"dataset-backend": "dataset.backend",
	"ledger-dir":      "ledger.dir",
	"poll-interval":   "wait.poll_interval",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default ~/.config/gohops/config.yaml)")
	pf.String("url", "", "Platform base URL")
	pf.String("api-key", "", "Platform API key")
	pf.StringP("project", "p", "", "Project name")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-profile", "", "Log profile: console or structured")
	pf.String("dataset-backend", "", "Dataset backend for log checks and downloads: rest or s3")
	pf.String("ledger-dir", "", "Directory of the local operation ledger")
	pf.Duration("poll-interval", 0, "Pause between status polls")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if path, _ := cmd.Flags().GetString("config"); strings.TrimSpace(path) != "" {
		// the loader reads the explicit file location from the environment
		if err := os.Setenv(config.ConfigFileEnv, path); err != nil {
			return exitError(ExitConfigError, "Failed to set config file", err)
		}
	}

	cfg, err := config.Load(commandContext(cmd), flagOverrides(cmd))
	if err != nil {
		return exitError(ExitConfigError, "Failed to load configuration", err)
	}
	if err := observability.InitCLILogger(cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(ExitConfigError, "Invalid logging configuration", err)
	}
	return nil
}

// flagOverrides turns the persistent flags set on the command line into
// config overrides.
func flagOverrides(cmd *cobra.Command) map[string]any {
	out := make(map[string]any)
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		section, field, _ := strings.Cut(key, ".")
		m, ok := out[section].(map[string]any)
		if !ok {
			m = make(map[string]any)
			out[section] = m
		}
		m[field] = f.Value.String()
	}
	return out
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
