package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/engine"
)

// Uploader is the part of manager.Uploader the S3 sink needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink uploads downloads to an S3 bucket with the multipart upload manager.
type S3Sink struct {
	uploader Uploader
	bucket   string
	prefix   string
}

func NewS3Sink(uploader Uploader, bucket, prefix string) *S3Sink {
	return &S3Sink{uploader: uploader, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// OpenS3Sink loads the shared AWS config for profile and targets
// "s3://bucket/prefix".
func OpenS3Sink(ctx context.Context, dest, profile string) (*S3Sink, error) {
	bucket, prefix, err := parseS3URL(dest)
	if err != nil {
		return nil, err
	}
	opts := []func(*config.LoadOptions) error{config.WithRetryMode(aws.RetryModeAdaptive)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 8 * 1024 * 1024
		u.Concurrency = 4
	})
	return NewS3Sink(uploader, bucket, prefix), nil
}

func (s *S3Sink) Key(filename string) string {
	if s.prefix == "" {
		return filename
	}
	return path.Join(s.prefix, filename)
}

func (s *S3Sink) Persist(ctx context.Context, blob *engine.Blob, filename string) error {
	key := s.Key(filename)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(blob.Data),
		ContentType:   aws.String(blob.MediaType),
		ContentLength: aws.Int64(blob.Size()),
	})
	if err != nil {
		return fmt.Errorf("error uploading s3://%s/%s: %w", s.bucket, key, err)
	}
	log.Info().Str("op", "sink/s3").Msgf("uploaded s3://%s/%s (%d bytes)", s.bucket, key, blob.Size())
	return nil
}

func parseS3URL(dest string) (string, string, error) {
	rest := strings.TrimPrefix(dest, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URL format: %s", dest)
	}
	prefix := ""
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return parts[0], prefix, nil
}
