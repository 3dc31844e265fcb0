package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/recipeworks/photo-worker/internal/common"
)

// S3Store implements Store on top of the AWS S3 client.
type S3Store struct {
	client *s3.Client
	logger *slog.Logger
}

func NewS3Store(client *s3.Client, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{client: client, logger: logger}
}

func (s *S3Store) Head(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			s.logger.Warn("object not found", "job_id", common.JobIDFromContext(ctx), "bucket", bucket, "key", key)
			return ObjectInfo{}, common.Wrapf(common.ErrNotFound, "head s3://%s/%s", bucket, key)
		}
		return ObjectInfo{}, classifyIO(err, "head", bucket, key)
	}
	info := ObjectInfo{
		ContentType: aws.ToString(out.ContentType),
		SizeBytes:   aws.ToInt64(out.ContentLength),
		ETag:        aws.ToString(out.ETag),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, common.Wrapf(common.ErrNotFound, "get s3://%s/%s", bucket, key)
		}
		return nil, classifyIO(err, "get", bucket, key)
	}
	return out.Body, nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key, contentType string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return classifyIO(err, "put", bucket, key)
	}
	s.logger.Debug("blob written", "job_id", common.JobIDFromContext(ctx), "bucket", bucket, "key", key, "size", len(body))
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

// classifyIO maps everything that is not a definite client fault onto the
// retryable transient bucket; the runtime's backoff owns the rest.
func classifyIO(err error, op, bucket, key string) error {
	return common.Wrapf(common.ErrTransientIO, "%s s3://%s/%s: %v", op, bucket, key, err)
}
