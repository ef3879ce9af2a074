// Package s3 implements dataset.Store for deployments that expose the dataset
// filesystem through an S3-compatible gateway.
package s3

import "strings"

// Config configures an S3-backed dataset store.
//
// Credentials come from AccessKeyID/SecretAccessKey when set, otherwise from
// the AWS default chain (environment, shared files selected by Profile,
// instance or task roles). The region falls back to instance metadata and
// then DefaultAWSRegion, unless Endpoint points at a custom gateway.
type Config struct {
	Bucket string

	// Prefix is prepended to every key. A dataset path /Projects/p/x maps to
	// key <Prefix>Projects/p/x. Non-empty prefixes end with a slash.
	Prefix string

	Region   string
	Endpoint string
	Profile  string

	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the URL path. Most gateways need it.
	ForcePathStyle bool
}

// DefaultAWSRegion is used for AWS S3 when no region resolves.
const DefaultAWSRegion = "us-east-1"

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Bucket == "":
		return &ConfigError{Field: "bucket", Message: "bucket name is required"}
	case (c.AccessKeyID == "") != (c.SecretAccessKey == ""):
		return &ConfigError{Field: "access_key_id", Message: "both access key ID and secret access key must be provided together"}
	case strings.HasPrefix(c.Prefix, "/"):
		return &ConfigError{Field: "prefix", Message: "prefix must not start with a slash"}
	case c.Prefix != "" && !strings.HasSuffix(c.Prefix, "/"):
		return &ConfigError{Field: "prefix", Message: "prefix must end with a slash"}
	}
	return nil
}

// ConfigError names the dataset.s3 setting that is invalid.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "dataset.s3." + e.Field + ": " + e.Message
}
