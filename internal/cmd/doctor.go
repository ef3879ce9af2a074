package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gohops/internal/config"
	"github.com/3leaps/gohops/internal/observability"
	"github.com/3leaps/gohops/pkg/dataset"
	"github.com/3leaps/gohops/pkg/project"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the configuration and the platform connection
and suggest fixes for common issues.

Examples:
  gohops doctor                        # Full check
  gohops doctor --dataset-backend s3   # Include S3 credential checks`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	log := observability.CLILogger
	ctx := commandContext(cmd)
	cfg := config.GetConfig()

	log.Info("=== gohops doctor ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 5
	s3Backend := cfg != nil && dataset.Backend(cfg.Dataset.Backend) == dataset.BackendS3
	if s3Backend {
		totalChecks = 7
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		log.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Configuration
	if cfg == nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking configuration... ❌ Not loaded", checkNum, totalChecks))
		return exitError(ExitConfigError, "Configuration not loaded", nil)
	}
	if cfg.Platform.URL == "" || cfg.Platform.APIKey == "" {
		log.Error(fmt.Sprintf("[%d/%d] Checking configuration... ❌ Platform URL or API key missing", checkNum, totalChecks))
		printPlatformConfigHelp()
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking configuration... ✅ %s", checkNum, totalChecks, cfg.Platform.URL),
			zap.String("project", cfg.Platform.Project),
			zap.String("dataset_backend", cfg.Dataset.Backend))
	}
	checkNum++

	// Check 3: Ledger directory
	if err := os.MkdirAll(cfg.Ledger.Dir, 0o755); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking ledger directory... ❌ Not writable", checkNum, totalChecks),
			zap.String("ledger_dir", cfg.Ledger.Dir),
			zap.Error(err))
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking ledger directory... ✅ %s", checkNum, totalChecks, cfg.Ledger.Dir))
	}
	checkNum++

	// Check 4: Platform connection
	if cfg.Platform.URL != "" && cfg.Platform.APIKey != "" {
		if !checkPlatform(ctx, cfg, checkNum, totalChecks) {
			allChecks = false
		}
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking platform connection... ⚠️  skipped", checkNum, totalChecks))
	}
	checkNum++

	// Check 5: Environment
	log.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	if s3Backend {
		allChecks = runS3Checks(ctx, cfg.Dataset.S3, checkNum, totalChecks, allChecks)
	}

	log.Info("")
	if allChecks {
		log.Info("✅ All checks passed! Your gohops setup is healthy.")
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("")
	log.Info("=== End Diagnostics ===")
	return nil
}

// checkPlatform verifies that the platform answers and accepts the API key,
// and that the configured project is visible.
func checkPlatform(ctx context.Context, cfg *config.Config, checkNum, totalChecks int) bool {
	log := observability.CLILogger
	s, err := newPlatformSession()
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking platform connection... ❌ Invalid configuration", checkNum, totalChecks),
			zap.Error(err))
		return false
	}

	version, err := project.NewVariables(s.client).GetVersion(ctx, "hopsworks")
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking platform connection... ❌ Cannot reach %s", checkNum, totalChecks, cfg.Platform.URL),
			zap.Error(err))
		return false
	}

	if cfg.Platform.Project == "" {
		log.Info(fmt.Sprintf("[%d/%d] Checking platform connection... ✅ v%s (no project configured)", checkNum, totalChecks, version))
		return true
	}
	p, err := project.NewAPI(s.client).GetProject(ctx, cfg.Platform.Project)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking platform connection... ❌ Project %s not accessible", checkNum, totalChecks, cfg.Platform.Project),
			zap.Error(err))
		return false
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking platform connection... ✅ v%s, project %s", checkNum, totalChecks, version, p.Name),
		zap.Int("project_id", p.ID))
	return true
}

// runS3Checks runs the checks of the S3 dataset backend.
func runS3Checks(ctx context.Context, s3cfg config.S3Config, checkNum, totalChecks int, allChecks bool) bool {
	log := observability.CLILogger
	log.Info("")
	log.Info("S3 Dataset Backend Checks:")

	// Check 6: AWS credentials
	if s3cfg.AccessKeyID != "" {
		log.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ Found static credentials", checkNum, totalChecks),
			zap.String("access_key", maskAccessKey(s3cfg.AccessKeyID)))
		checkNum++
		log.Info(fmt.Sprintf("[%d/%d] Checking credential source... ✅ configuration", checkNum, totalChecks))
		return allChecks
	}

	var opts []func(*awsconfig.LoadOptions) error
	if s3cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s3cfg.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot load AWS config", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot retrieve credentials", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	log.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ Found credentials", checkNum, totalChecks),
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", creds.Source))
	checkNum++

	// Check 7: Credential source info
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking credential source... ✅ %s", checkNum, totalChecks, source),
		zap.String("credential_source", source))

	return allChecks
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printPlatformConfigHelp() {
	log := observability.CLILogger
	log.Info("")
	log.Info("To configure the platform connection:")
	log.Info("  1. Set GOHOPS_URL, GOHOPS_API_KEY and GOHOPS_PROJECT, or")
	log.Info("  2. Add platform.url, platform.api_key and platform.project to ~/.config/gohops/config.yaml, or")
	log.Info("  3. Pass --url, --api-key and --project")
	log.Info("")
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	log := observability.CLILogger
	log.Info("")
	log.Info("To configure AWS credentials:")
	log.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	log.Info("  2. Run 'aws configure' to set up a profile and set GOHOPS_S3_PROFILE, or")
	log.Info("  3. Use IAM role when running on AWS infrastructure")
	log.Info("")
	log.Info("For S3-compatible gateways, also set:")
	log.Info("  - GOHOPS_S3_ENDPOINT or dataset.s3.endpoint")
	log.Info("")
}
