package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/recipeworks/photo-worker/constants"
	"github.com/recipeworks/photo-worker/internal/blobstore"
	"github.com/recipeworks/photo-worker/internal/ocrengine"
)

// ocrEnvelope wraps the raw engine response with provenance, matching the
// layout readers of artifacts/{jobId}/textract.json expect.
type ocrEnvelope struct {
	TextractResponse json.RawMessage `json:"textract_response"`
	SourceBucket     string          `json:"source_bucket"`
	SourceKey        string          `json:"source_key"`
	JobID            string          `json:"job_id"`
	OCREngine        string          `json:"ocr_engine"`
	OCRVersion       string          `json:"ocr_version"`
	PageCount        int             `json:"page_count"`
}

// OCRStage invokes the engine and persists the full response blob at a key
// derived only from the job id. It reports success only after the blob write
// lands; the persistence stage depends on that.
type OCRStage struct {
	engine         ocrengine.Engine
	blobs          blobstore.Store
	artifactBucket string
	logger         *slog.Logger
}

func NewOCRStage(engine ocrengine.Engine, blobs blobstore.Store, artifactBucket string, logger *slog.Logger) *OCRStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRStage{engine: engine, blobs: blobs, artifactBucket: artifactBucket, logger: logger}
}

func (s *OCRStage) Run(ctx context.Context, in OCRInput) (OCRSummary, error) {
	res, err := s.engine.Detect(ctx, in.Bucket, in.Key)
	if err != nil {
		return OCRSummary{}, err
	}

	envelope := ocrEnvelope{
		TextractResponse: res.Raw,
		SourceBucket:     in.Bucket,
		SourceKey:        in.Key,
		JobID:            in.JobID,
		OCREngine:        s.engine.Name(),
		OCRVersion:       res.EngineVersion,
		PageCount:        res.PageCount,
	}
	body, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return OCRSummary{}, fmt.Errorf("encoding ocr envelope: %w", err)
	}

	ocrKey := constants.OCRArtifactKey(in.JobID)
	if err := s.blobs.Put(ctx, s.artifactBucket, ocrKey, constants.ContentTypeJSON, body); err != nil {
		return OCRSummary{}, err
	}

	s.logger.Info("ocr.ok",
		"job_id", in.JobID,
		"ocr_key", ocrKey,
		"pages", res.PageCount,
		"version", res.EngineVersion,
	)
	return OCRSummary{
		OCRObjectKey:  ocrKey,
		EngineName:    s.engine.Name(),
		EngineVersion: res.EngineVersion,
		PageCount:     res.PageCount,
	}, nil
}
