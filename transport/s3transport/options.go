package s3transport

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
)

// Option configures a Transport.
type Option func(*Transport)

// WithRegion sets the region used as the location constraint for new buckets.
func WithRegion(region string) Option {
	return func(t *Transport) {
		t.region = region
	}
}

// WithMinPartSize overrides the minimum part size, for S3-compatible services with other limits.
func WithMinPartSize(size int64) Option {
	return func(t *Transport) {
		if size > 0 {
			t.minPartSize = size
		}
	}
}

// Config describes how to reach an S3 endpoint.
type Config struct {
	// Region is the AWS region; empty uses the default chain and then us-east-1
	Region string

	// Endpoint overrides the service endpoint (LocalStack, MinIO, Ceph)
	Endpoint string

	// UsePathStyle addresses buckets as path segments instead of subdomains
	UsePathStyle bool

	// AccessKeyID and SecretAccessKey select static credentials; empty uses the default chain
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// MinPartSize overrides MinPartSize when positive
	MinPartSize int64
}

// NewFromConfig loads AWS configuration and creates a Transport.
// SDK-level retries are disabled because the objstore retry policy owns them.
func NewFromConfig(ctx context.Context, cfg Config) (*Transport, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRetryMaxAttempts(1),
	}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, objerrors.NewError("s3 client initialization", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return New(client, WithRegion(awsCfg.Region), WithMinPartSize(cfg.MinPartSize)), nil
}
