package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/recipeworks/photo-worker/constants"
	"github.com/recipeworks/photo-worker/internal/blobstore"
	"github.com/recipeworks/photo-worker/internal/repository"
)

// tagDocument is the additive tagging artifact at tags/{jobId}/v{n}.json.
type tagDocument struct {
	JobID         string   `json:"job_id"`
	SchemaVersion int      `json:"schema_version"`
	Tags          []string `json:"tags"`
	OCRObjectKey  string   `json:"s3_ocr_key"`
	CreatedAt     string   `json:"created_at"`
}

// TaggingStage derives coarse tags from the OCR output and records them under
// a version-scoped key. Results are additive: a new schema version writes a
// new blob and a new row, never touching earlier versions.
type TaggingStage struct {
	recipes        repository.RecipeRepository
	blobs          blobstore.Store
	artifactBucket string
	schemaVersion  int
	clock          func() time.Time
	logger         *slog.Logger
}

func NewTaggingStage(recipes repository.RecipeRepository, blobs blobstore.Store, artifactBucket string, schemaVersion int, logger *slog.Logger) *TaggingStage {
	if logger == nil {
		logger = slog.Default()
	}
	if schemaVersion <= 0 {
		schemaVersion = 1
	}
	return &TaggingStage{
		recipes:        recipes,
		blobs:          blobs,
		artifactBucket: artifactBucket,
		schemaVersion:  schemaVersion,
		clock:          time.Now,
		logger:         logger,
	}
}

// keyword-to-tag table for schema version 1. Matching is case-insensitive
// against the detected line text.
var tagKeywords = map[string]string{
	"bake":  "baked",
	"oven":  "baked",
	"grill": "grilled",
	"fry":   "fried",
	"boil":  "boiled",
	"roast": "roasted",
	"vegan": "vegan",
	"cup":   "measured",
	"tbsp":  "measured",
	"tsp":   "measured",
}

func (s *TaggingStage) Run(ctx context.Context, jobID string, ocr OCRSummary) error {
	raw, err := blobstore.GetBytes(ctx, s.blobs, s.artifactBucket, ocr.OCRObjectKey)
	if err != nil {
		return err
	}

	var envelope struct {
		TextractResponse struct {
			Blocks []struct {
				BlockType string `json:"BlockType"`
				Text      string `json:"Text"`
			} `json:"Blocks"`
		} `json:"textract_response"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decoding ocr envelope for %s: %w", jobID, err)
	}

	seen := map[string]bool{}
	var tags []string
	for _, block := range envelope.TextractResponse.Blocks {
		if block.BlockType != "LINE" {
			continue
		}
		text := strings.ToLower(block.Text)
		for keyword, tag := range tagKeywords {
			if seen[tag] || !strings.Contains(text, keyword) {
				continue
			}
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	if tags == nil {
		tags = []string{}
	}

	now := s.clock().UTC()
	doc := tagDocument{
		JobID:         jobID,
		SchemaVersion: s.schemaVersion,
		Tags:          tags,
		OCRObjectKey:  ocr.OCRObjectKey,
		CreatedAt:     now.Format(time.RFC3339),
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tags for %s: %w", jobID, err)
	}

	tagsKey := constants.TagsKey(jobID, s.schemaVersion)
	if err := s.blobs.Put(ctx, s.artifactBucket, tagsKey, constants.ContentTypeJSON, body); err != nil {
		return err
	}
	if err := s.recipes.UpsertTag(ctx, repository.TagRow{
		RecipeID:      jobID,
		SchemaVersion: s.schemaVersion,
		TagsObjectKey: tagsKey,
		CreatedAt:     now,
	}); err != nil {
		return err
	}

	s.logger.Info("tagging.ok", "job_id", jobID, "schema_version", s.schemaVersion, "tags", len(tags))
	return nil
}
