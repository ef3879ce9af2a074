package s3

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/3leaps/gohops/pkg/dataset"
)

// objectAPI is the subset of the S3 client used by Store.
type objectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store implements dataset.Store over S3.
type Store struct {
	client objectAPI
	bucket string
	prefix string
	log    *zap.Logger
}

// Ensure Store implements dataset.Store.
var _ dataset.Store = (*Store)(nil)

// imdsTimeout bounds the instance metadata region lookup.
const imdsTimeout = 2 * time.Second

// regionFromIMDS asks the EC2 instance metadata service for the region.
var regionFromIMDS = func(ctx context.Context, awsCfg aws.Config) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, imdsTimeout)
	defer cancel()
	out, err := imds.NewFromConfig(awsCfg).GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return "", err
	}
	return out.Region, nil
}

// New creates a new S3 dataset store with the given configuration.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	awsCfg, err := loadAWSConfig(ctx, cfg, log)
	if err != nil {
		return nil, &dataset.StoreError{Op: "New", Backend: dataset.BackendS3, Err: err}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log,
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config, log *zap.Logger) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	if awsCfg.Region == "" && cfg.Endpoint == "" {
		region, err := regionFromIMDS(ctx, awsCfg)
		if err != nil {
			log.Debug("Instance metadata region lookup failed", zap.Error(err))
		}
		awsCfg.Region = region
	}
	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)

	return awsCfg, nil
}

// Key maps a dataset path to an object key.
func (s *Store) Key(datasetPath string) string {
	return s.prefix + strings.TrimPrefix(path.Clean("/"+datasetPath), "/")
}

// Stat returns the metadata of datasetPath.
func (s *Store) Stat(ctx context.Context, datasetPath string) (*dataset.Entry, error) {
	key := s.Key(datasetPath)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrapError("Stat", datasetPath, err)
	}
	return &dataset.Entry{
		Path:       datasetPath,
		Name:       path.Base(datasetPath),
		Size:       aws.ToInt64(out.ContentLength),
		ModifiedAt: aws.ToTime(out.LastModified),
	}, nil
}

// Exists reports whether datasetPath exists.
func (s *Store) Exists(ctx context.Context, datasetPath string) (bool, error) {
	_, err := s.Stat(ctx, datasetPath)
	switch {
	case err == nil:
		return true, nil
	case dataset.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Download copies datasetPath into localDir.
func (s *Store) Download(ctx context.Context, datasetPath, localDir string, overwrite bool) (string, error) {
	target, err := dataset.LocalTarget(datasetPath, localDir, overwrite)
	if err != nil {
		return "", err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(datasetPath)),
	})
	if err != nil {
		return "", s.wrapError("Download", datasetPath, err)
	}
	defer func() { _ = out.Body.Close() }()

	n, err := dataset.WriteFile(target, out.Body)
	if err != nil {
		return "", &dataset.StoreError{Op: "Download", Backend: dataset.BackendS3, Path: datasetPath, Err: err}
	}

	s.log.Debug("Downloaded dataset object",
		zap.String("bucket", s.bucket),
		zap.String("key", s.Key(datasetPath)),
		zap.String("local_path", target),
		zap.Int64("bytes", n))
	return target, nil
}

// Remove deletes datasetPath.
func (s *Store) Remove(ctx context.Context, datasetPath string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(datasetPath)),
	})
	if err != nil {
		return s.wrapError("Remove", datasetPath, err)
	}
	return nil
}

// wrapError converts S3 errors to store errors with dataset sentinels.
func (s *Store) wrapError(op, datasetPath string, err error) error {
	wrapped := &dataset.StoreError{
		Op:      op,
		Backend: dataset.BackendS3,
		Path:    datasetPath,
		Err:     err,
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		wrapped.Err = dataset.ErrNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			wrapped.Err = dataset.ErrNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = dataset.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = dataset.ErrInvalidCredentials
		case "SlowDown", "Throttling", "ServiceUnavailable", "InternalError", "NoSuchBucket":
			wrapped.Err = dataset.ErrUnavailable
		}
		return wrapped
	}

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "404"):
		wrapped.Err = dataset.ErrNotFound
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "403"):
		wrapped.Err = dataset.ErrAccessDenied
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "503"):
		wrapped.Err = dataset.ErrUnavailable
	}
	return wrapped
}

// resolveRegion applies the fallback default after SDK and instance metadata
// resolution: us-east-1 for AWS S3, nothing for custom endpoints.
func resolveRegion(endpoint, resolved string) string {
	if resolved != "" {
		return resolved
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}
