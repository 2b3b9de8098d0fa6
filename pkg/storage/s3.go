// Package storage ships exported reports to S3 compatible object storage.
package storage

import (
	"context"
	"io"
	"log/slog"
	"path"
	"strings"

	"aaronromeo.com/mailtally/pkg/utils"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/pkg/errors"
)

// Uploader stores a named object and returns where it ended up.
type Uploader interface {
	Upload(ctx context.Context, name string, body io.Reader) (string, error)
}

type S3Uploader struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
	region   string
	endpoint string
	logger   *slog.Logger
}

type S3Option func(*S3Uploader) error

func NewS3Uploader(opts ...S3Option) (*S3Uploader, error) {
	u := &S3Uploader{}
	for _, opt := range opts {
		if err := opt(u); err != nil {
			return nil, err
		}
	}

	if u.bucket == "" {
		return nil, errors.New("requires bucket")
	}
	if u.logger == nil {
		return nil, errors.New("requires slogger")
	}

	if u.uploader == nil {
		cfg := aws.NewConfig()
		if u.region != "" {
			cfg = cfg.WithRegion(u.region)
		}
		if u.endpoint != "" {
			cfg = cfg.WithEndpoint(u.endpoint).WithS3ForcePathStyle(true)
		}
		sess, err := session.NewSession(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "creating aws session")
		}
		u.uploader = s3manager.NewUploader(sess)
	}
	return u, nil
}

func WithBucket(bucket, prefix string) S3Option {
	return func(u *S3Uploader) error {
		u.bucket = bucket
		u.prefix = strings.Trim(prefix, "/")
		return nil
	}
}

func WithRegion(region string) S3Option {
	return func(u *S3Uploader) error {
		u.region = region
		return nil
	}
}

// WithEndpoint points the client at a non-AWS endpoint such as MinIO.
func WithEndpoint(endpoint string) S3Option {
	return func(u *S3Uploader) error {
		u.endpoint = endpoint
		return nil
	}
}

func WithUploader(uploader s3manageriface.UploaderAPI) S3Option {
	return func(u *S3Uploader) error {
		u.uploader = uploader
		return nil
	}
}

func WithLogger(logger *slog.Logger) S3Option {
	return func(u *S3Uploader) error {
		u.logger = logger
		return nil
	}
}

// Key is the object key used for name.
func (u *S3Uploader) Key(name string) string {
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

func (u *S3Uploader) Upload(ctx context.Context, name string, body io.Reader) (string, error) {
	key := u.Key(name)
	out, err := u.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		u.logger.ErrorContext(ctx, "Failed to upload report", slog.String("bucket", u.bucket), slog.String("key", key), slog.Any("error", utils.WrapError(err)))
		return "", errors.Wrapf(err, "uploading s3://%s/%s", u.bucket, key)
	}

	u.logger.InfoContext(ctx, "Uploaded report", slog.String("location", out.Location))
	return out.Location, nil
}
