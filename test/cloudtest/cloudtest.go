// Package cloudtest runs dataset stores against a local S3 gateway (moto).
//
// Tests using this package should be tagged with //go:build cloudintegration.
//
// Usage:
//
//	func TestLogs(t *testing.T) {
//	    cloudtest.SkipIfUnavailable(t)
//	    gw := cloudtest.NewGateway(t, ctx, "hopsfs/")
//	    gw.PutDatasetFile(t, ctx, "/Projects/demo/Logs/stdout.log", []byte("ok"))
//	    store, err := s3.New(ctx, gw.StoreConfig(), nil)
//	    // ... test code ...
//	}
package cloudtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/3leaps/gohops/pkg/dataset/s3"
)

const (
	// DefaultEndpoint is where moto listens unless GOHOPS_TEST_S3_ENDPOINT is set.
	DefaultEndpoint = "http://localhost:5555"

	// DefaultRegion is the region used against the gateway.
	DefaultRegion = "us-east-1"

	// TestAccessKeyID and TestSecretAccessKey are accepted by moto.
	TestAccessKeyID     = "testing"
	TestSecretAccessKey = "testing"
)

var (
	Endpoint = envOr("GOHOPS_TEST_S3_ENDPOINT", envOr("MOTO_ENDPOINT", DefaultEndpoint))
	Region   = envOr("GOHOPS_TEST_S3_REGION", DefaultRegion)
)

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Available reports whether the gateway answers.
func Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint+"/moto-api/", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SkipIfUnavailable skips the test when no gateway is running.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skipf("S3 gateway not available at %s (start moto or set GOHOPS_TEST_S3_ENDPOINT)", Endpoint)
	}
}

// Gateway is a bucket laid out like the dataset filesystem: the dataset path
// /Projects/p/x is stored at key <Prefix>Projects/p/x.
type Gateway struct {
	Bucket string
	Prefix string

	client *awss3.Client
}

// NewGateway creates a fresh bucket that is emptied and deleted when the
// test ends.
func NewGateway(t *testing.T, ctx context.Context, prefix string) *Gateway {
	t.Helper()

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(TestAccessKeyID, TestSecretAccessKey, "")),
	)
	if err != nil {
		t.Fatalf("cloudtest: load aws config: %v", err)
	}
	c := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		o.BaseEndpoint = aws.String(Endpoint)
		o.UsePathStyle = true
	})

	gw := &Gateway{Bucket: bucketName(t), Prefix: prefix, client: c}
	if _, err := c.CreateBucket(ctx, &awss3.CreateBucketInput{Bucket: aws.String(gw.Bucket)}); err != nil {
		t.Fatalf("cloudtest: create bucket %s: %v", gw.Bucket, err)
	}
	t.Cleanup(func() { gw.drop(t) })
	return gw
}

// bucketName derives a valid, unique bucket name from the test name.
func bucketName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.NewReplacer("/", "-", "_", "-").Replace(name)
	if len(name) > 50 {
		name = name[:50]
	}
	return fmt.Sprintf("%s-%d", strings.Trim(name, "-"), time.Now().UnixNano()%100000)
}

// StoreConfig returns the configuration of a dataset store reading this
// gateway.
func (g *Gateway) StoreConfig() s3.Config {
	return s3.Config{
		Bucket:          g.Bucket,
		Prefix:          g.Prefix,
		Region:          Region,
		Endpoint:        Endpoint,
		AccessKeyID:     TestAccessKeyID,
		SecretAccessKey: TestSecretAccessKey,
		ForcePathStyle:  true,
	}
}

// Key maps a dataset path to its object key.
func (g *Gateway) Key(datasetPath string) string {
	return g.Prefix + strings.TrimPrefix(datasetPath, "/")
}

// PutDatasetFile stores content at datasetPath.
func (g *Gateway) PutDatasetFile(t *testing.T, ctx context.Context, datasetPath string, content []byte) {
	t.Helper()
	_, err := g.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(g.Bucket),
		Key:    aws.String(g.Key(datasetPath)),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		t.Fatalf("cloudtest: put %s: %v", datasetPath, err)
	}
}

// HasDatasetFile reports whether datasetPath is stored, bypassing the store
// under test.
func (g *Gateway) HasDatasetFile(t *testing.T, ctx context.Context, datasetPath string) bool {
	t.Helper()
	_, err := g.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(g.Bucket),
		Key:    aws.String(g.Key(datasetPath)),
	})
	if err == nil {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false
	}
	t.Fatalf("cloudtest: head %s: %v", datasetPath, err)
	return false
}

func (g *Gateway) drop(t *testing.T) {
	ctx := context.Background()
	pages := awss3.NewListObjectsV2Paginator(g.client, &awss3.ListObjectsV2Input{Bucket: aws.String(g.Bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			t.Logf("cloudtest: list %s: %v", g.Bucket, err)
			return
		}
		for _, obj := range page.Contents {
			if _, err := g.client.DeleteObject(ctx, &awss3.DeleteObjectInput{Bucket: aws.String(g.Bucket), Key: obj.Key}); err != nil {
				t.Logf("cloudtest: delete %s: %v", aws.ToString(obj.Key), err)
			}
		}
	}
	if _, err := g.client.DeleteBucket(ctx, &awss3.DeleteBucketInput{Bucket: aws.String(g.Bucket)}); err != nil {
		t.Logf("cloudtest: delete bucket %s: %v", g.Bucket, err)
	}
}
