package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"
	"gopkg.in/yaml.v3"

	schemasassets "github.com/3leaps/gohops/internal/assets/schemas"
	"github.com/3leaps/gohops/pkg/dataset"
)

const (
	hdfsScheme        = "hdfs://"
	pythonRunnerClass = "org.apache.spark.deploy.PythonRunner"
)

// ErrInvalidConfig marks a job configuration rejected by the schema or by
// the rules of its job type.
var ErrInvalidConfig = errors.New("invalid job configuration")

// ConfigIssue is one schema violation.
type ConfigIssue struct {
	// Pointer is the JSON pointer of the offending field ("" for the root).
	Pointer string
	Message string
}

func (i ConfigIssue) String() string {
	if i.Pointer == "" {
		return i.Message
	}
	return i.Pointer + ": " + i.Message
}

// ConfigErrors lists every schema violation of a job configuration.
type ConfigErrors []ConfigIssue

func (e ConfigErrors) Error() string {
	parts := make([]string, len(e))
	for i, issue := range e {
		parts[i] = issue.String()
	}
	return "job configuration: " + strings.Join(parts, "; ")
}

func (e ConfigErrors) Unwrap() error { return ErrInvalidConfig }

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

func configValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		validator, validatorErr = schema.NewValidator(schemasassets.JobConfigSchema)
		if validatorErr != nil {
			validatorErr = fmt.Errorf("compile job configuration schema: %w", validatorErr)
		}
	})
	return validator, validatorErr
}

// CheckSchema validates config against the embedded job configuration
// schema. Warnings are ignored.
func CheckSchema(config map[string]any) error {
	v, err := configValidator()
	if err != nil {
		return err
	}
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	diags, err := v.ValidateJSON(data)
	if err != nil {
		return fmt.Errorf("job configuration schema: %w", err)
	}

	var issues ConfigErrors
	for _, d := range diags {
		if d.Severity == schema.SeverityError {
			issues = append(issues, ConfigIssue{Pointer: d.Pointer, Message: d.Message})
		}
	}
	if len(issues) == 0 {
		return nil
	}
	return issues
}

// LoadConfigFile reads a job configuration from a YAML or JSON file and
// checks it against the schema.
func LoadConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job configuration: %w", err)
	}

	var cfg map[string]any
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse job configuration %s: %w", path, err)
	}
	if len(cfg) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidConfig, path)
	}
	if err := CheckSchema(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ValidateConfig checks a job configuration against the schema and the rules
// of its job type, and fills in derived fields.
//
// appPath is required except for docker and flink jobs and is made an
// absolute hdfs:// path under the project. Spark jobs whose application is a
// Python file get the Python runner as main class; other Spark jobs must set
// mainClass. The input map is not modified.
func ValidateConfig(config map[string]any, project string) (map[string]any, error) {
	if err := CheckSchema(config); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(config)+1)
	for k, v := range config {
		out[k] = v
	}

	typ, _ := out["type"].(string)
	appPath, hasApp := out["appPath"].(string)
	if !hasApp && typ != "dockerJobConfiguration" && typ != "flinkJobConfiguration" {
		return nil, fmt.Errorf("%w: 'appPath' not set", ErrInvalidConfig)
	}
	if hasApp && !strings.HasPrefix(appPath, hdfsScheme) {
		appPath = hdfsScheme + dataset.AbsPath(project, appPath)
		out["appPath"] = appPath
	}

	if typ == "sparkJobConfiguration" {
		if strings.HasSuffix(appPath, ".py") {
			out["mainClass"] = pythonRunnerClass
		} else if mc, _ := out["mainClass"].(string); mc == "" {
			return nil, fmt.Errorf("%w: 'mainClass' not set", ErrInvalidConfig)
		}
	}
	return out, nil
}
