package ocrengine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/recipeworks/photo-worker/internal/common"
)

// Textract implements Engine via the synchronous DetectDocumentText API.
// The sync API caps input size and page count; exceeding either is a
// job-level failure the operator resolves by resizing input.
type Textract struct {
	client   *textract.Client
	maxPages int
	logger   *slog.Logger
}

func NewTextract(client *textract.Client, maxPages int, logger *slog.Logger) *Textract {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Textract{client: client, maxPages: maxPages, logger: logger}
}

func (t *Textract) Name() string { return "textract" }

func (t *Textract) Detect(ctx context.Context, bucket, key string) (Result, error) {
	out, err := t.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{
			S3Object: &types.S3Object{
				Bucket: aws.String(bucket),
				Name:   aws.String(key),
			},
		},
	})
	if err != nil {
		return Result{}, t.classify(err, bucket, key)
	}

	pageCount := 1
	if out.DocumentMetadata != nil && out.DocumentMetadata.Pages != nil {
		pageCount = int(*out.DocumentMetadata.Pages)
	}
	if pageCount > t.maxPages {
		return Result{}, common.Wrapf(common.ErrEngineLimit,
			"document has %d pages, ceiling is %d", pageCount, t.maxPages)
	}

	version := aws.ToString(out.DetectDocumentTextModelVersion)
	if version == "" {
		version = "unknown"
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return Result{}, common.Wrap(err, "encoding textract response")
	}

	t.logger.Info("textract.ok",
		"job_id", common.JobIDFromContext(ctx),
		"bucket", bucket,
		"key", key,
		"pages", pageCount,
		"version", version,
	)
	return Result{Raw: raw, PageCount: pageCount, EngineVersion: version}, nil
}

func (t *Textract) classify(err error, bucket, key string) error {
	var (
		tooLarge    *types.DocumentTooLargeException
		unsupported *types.UnsupportedDocumentException
		badDoc      *types.BadDocumentException
		invalidObj  *types.InvalidS3ObjectException
		throughput  *types.ProvisionedThroughputExceededException
		throttled   *types.ThrottlingException
	)
	switch {
	case errors.As(err, &tooLarge), errors.As(err, &unsupported), errors.As(err, &badDoc):
		return common.Wrapf(common.ErrEngineLimit, "textract rejected s3://%s/%s: %v", bucket, key, err)
	case errors.As(err, &invalidObj):
		return common.Wrapf(common.ErrNotFound, "textract cannot read s3://%s/%s: %v", bucket, key, err)
	case errors.As(err, &throughput), errors.As(err, &throttled):
		return common.Wrapf(common.ErrEngineTransient, "textract throttled for s3://%s/%s: %v", bucket, key, err)
	default:
		return common.Wrapf(common.ErrEngineTransient, "textract call failed for s3://%s/%s: %v", bucket, key, err)
	}
}
