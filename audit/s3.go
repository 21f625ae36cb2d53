package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the S3 audit archive.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// s3PutAPI is the slice of the S3 client the archiver uses.
type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes one JSON object per record under
// <prefix>/day=<YYYY-MM-DD>/<job_id>.attempt-<n>.json.
type S3Archiver struct {
	config S3Config
	client s3PutAPI
}

// NewS3Archiver creates an archiver against the real AWS SDK client.
// Uses the AWS SDK default credential chain (env vars, shared config,
// IAM role).
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Archiver{
		config: cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// newS3ArchiverWithClient wires an injected client. For tests.
func newS3ArchiverWithClient(cfg S3Config, client s3PutAPI) (*S3Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("S3 client is required")
	}
	return &S3Archiver{config: cfg, client: client}, nil
}

// Archive uploads the record as a JSON object.
func (a *S3Archiver) Archive(ctx context.Context, rec *Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	key := a.key(rec)
	contentType := "application/json"
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.config.Bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("audit: put %s: %w", key, err)
	}
	return nil
}

func (a *S3Archiver) key(rec *Record) string {
	day := rec.Timestamp.Format("2006-01-02")
	name := fmt.Sprintf("%s.attempt-%d.json", rec.JobID, rec.Attempt)
	return path.Join(a.config.Prefix, "day="+day, name)
}

// Close is a no-op; the SDK client holds no long-lived connections that
// need explicit teardown.
func (a *S3Archiver) Close() error { return nil }

var _ Archiver = (*S3Archiver)(nil)
