// Package ocrengine adapts the synchronous text-extraction service. The
// production implementation calls AWS Textract; Fake backs tests.
package ocrengine

import (
	"context"
	"encoding/json"
)

// Result is one engine invocation's output. Raw carries the full engine
// response so the OCR stage can persist it verbatim as a blob.
type Result struct {
	Raw           json.RawMessage
	PageCount     int
	EngineVersion string
}

// Engine submits an image already sitting in the blob store and returns the
// structured result, or an error classified per the common taxonomy:
// common.ErrEngineLimit for size/page/format ceilings (non-retryable),
// common.ErrEngineTransient for throttling and transient engine failures.
type Engine interface {
	Detect(ctx context.Context, bucket, key string) (Result, error)
	Name() string
}
