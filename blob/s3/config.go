package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultMaxPoolConnections caps concurrent in-flight S3 calls per Store.
const DefaultMaxPoolConnections = 30

// Config holds the explicit configuration of the S3 backend.
type Config struct {
	// AccessKeyID / SecretAccessKey are static credentials. When both are
	// empty the AWS default credential chain is used instead.
	AccessKeyID     string
	SecretAccessKey string

	// Region is the bucket region. Required.
	Region string

	// Endpoint points the client at an S3-compatible service
	// (e.g. "http://localhost:4566" for LocalStack). Empty means AWS.
	Endpoint string

	// UsePathStyle forces path-style addressing, which most S3-compatible
	// emulators require.
	UsePathStyle bool

	// Bucket is the base bucket name containers are derived from.
	Bucket string

	// BucketNameFormat shapes per-container bucket names. Supported
	// placeholders: {container}, {delimiter}, {base}. Empty means
	// "{container}{delimiter}{base}".
	BucketNameFormat string

	// BucketDelimiter joins the format pieces. Empty infers "." when the
	// base name is dotted, "-" otherwise.
	BucketDelimiter string

	// MaxPoolConnections bounds concurrent S3 calls. Zero means
	// DefaultMaxPoolConnections.
	MaxPoolConnections int
}

func (c Config) validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 config: bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 config: region is required")
	}
	return nil
}

// newClient builds an aws-sdk-go-v2 S3 client from the config.
func newClient(ctx context.Context, cfg Config) (*awss3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}
