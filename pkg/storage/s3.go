// Package storage publishes static assets to S3 compatible buckets
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type Config struct {
	Bucket string
	Region string
	// Endpoint points at a non AWS provider such as R2 or MinIO, empty
	// means AWS itself
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type S3 struct {
	C      *s3.Client
	Bucket *string

	up  uploader
	cfg Config
}

// NewS3 builds a client and makes sure the bucket exists
func NewS3(ctx context.Context, c Config) (*S3, error) {
	if c.Bucket == "" {
		return nil, errors.New("no bucket configured")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKeyID,
			c.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config, %w", err)
	}

	bucket := aws.String(c.Bucket)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.Region = c.Region
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})

	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: bucket,
	})
	if err != nil {
		var apiErr smithy.APIError

		if errors.As(err, &apiErr) {
			if apiErr.ErrorCode() == "NotFound" {
				return nil, fmt.Errorf("bucket '%s' does not exist", *bucket)
			}
		}

		return nil, fmt.Errorf("failed to check if bucket exists, %w", err)
	}

	return &S3{
		C:      client,
		Bucket: bucket,
		up:     manager.NewUploader(client),
		cfg:    c,
	}, nil
}

// PublicURL is where objects under prefix can be fetched from, with a
// trailing slash
func (s *S3) PublicURL(prefix string) string {
	prefix = strings.Trim(prefix, "/")

	var base string
	if s.cfg.Endpoint != "" {
		base = strings.TrimRight(s.cfg.Endpoint, "/") + "/" + *s.Bucket
	} else {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", *s.Bucket, s.cfg.Region)
	}

	if prefix == "" {
		return base + "/"
	}

	return base + "/" + prefix + "/"
}
