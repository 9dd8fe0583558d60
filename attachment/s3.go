// Package attachment resolves supporting-document metadata (size and MIME
// type) for leave requests. Content is never read by the leave engine.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// S3Config holds the connection settings of an S3-compatible bucket
// (AWS S3, MinIO, RustFS).
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Prefix       string // key prefix, e.g. "attachments/"
}

// S3Store reads attachment metadata with HeadObject. The attachment id is
// the object key below Prefix.
type S3Store struct {
	client s3.HeadObjectAPIClient
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Store builds a client from cfg.
func NewS3Store(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("attachment bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client s3.HeadObjectAPIClient, bucket, prefix string, logger *zap.Logger) *S3Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (s *S3Store) GetAttachment(ctx context.Context, id string) (*leave.Attachment, error) {
	if id == "" || strings.Contains(id, "..") {
		return nil, generic.NewValidationError("attachment_id", "invalid attachment id %q", id)
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + id),
	})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return nil, &generic.NotFoundError{Kind: "attachment", ID: id}
		}
		s.logger.Error("head object failed", zap.String("bucket", s.bucket), zap.String("key", s.prefix+id), zap.Error(err))
		return nil, fmt.Errorf("head attachment %s: %w", id, err)
	}

	return &leave.Attachment{
		ID:       id,
		Size:     aws.ToInt64(out.ContentLength),
		MimeType: aws.ToString(out.ContentType),
	}, nil
}

var _ leave.AttachmentStore = (*S3Store)(nil)
