package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/recipeworks/photo-worker/constants"
	"github.com/recipeworks/photo-worker/internal/blobstore"
	"github.com/recipeworks/photo-worker/internal/common"
	"github.com/recipeworks/photo-worker/internal/repository"
)

// PersistStage records the completed job: recipe row, OCR metadata row, then
// the manifest blob, and only then the terminal status flip. Every write is
// an upsert keyed by the job id, so replays converge on the same rows and
// the same manifest bytes.
type PersistStage struct {
	recipes        repository.RecipeRepository
	blobs          blobstore.Store
	artifactBucket string
	clock          func() time.Time
	logger         *slog.Logger
}

func NewPersistStage(recipes repository.RecipeRepository, blobs blobstore.Store, artifactBucket string, logger *slog.Logger) *PersistStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStage{
		recipes:        recipes,
		blobs:          blobs,
		artifactBucket: artifactBucket,
		clock:          time.Now,
		logger:         logger,
	}
}

func (s *PersistStage) Run(ctx context.Context, in PersistInput) (PersistResult, error) {
	now := s.clock().UTC()

	row, err := s.recipes.UpsertRecipe(ctx, in.JobID, in.Asset.Key, in.Asset.SHA256, constants.StatusRunning, now)
	if err != nil {
		return PersistResult{}, common.Wrapf(common.ErrTransientIO, "upserting recipe %s: %v", in.JobID, err)
	}
	if row == nil {
		return PersistResult{}, common.Wrapf(common.ErrConflict, "recipe %s vanished after upsert", in.JobID)
	}
	if row.ContentSHA256 != in.Asset.SHA256 {
		return PersistResult{}, common.Wrapf(common.ErrConflict,
			"recipe %s already recorded with digest %s, this run computed %s",
			in.JobID, row.ContentSHA256, in.Asset.SHA256)
	}
	if row.Status != constants.StatusSucceeded && !constants.CanTransition(row.Status, constants.StatusSucceeded) {
		return PersistResult{}, common.Wrapf(common.ErrConflict, "recipe %s is %s and cannot succeed", in.JobID, row.Status)
	}

	if err := s.recipes.UpsertOCR(ctx, repository.OCRRow{
		RecipeID:      in.JobID,
		OCRObjectKey:  in.OCR.OCRObjectKey,
		EngineName:    in.OCR.EngineName,
		EngineVersion: in.OCR.EngineVersion,
		PageCount:     in.OCR.PageCount,
		CreatedAt:     now,
	}); err != nil {
		return PersistResult{}, common.Wrapf(common.ErrTransientIO, "upserting ocr row for %s: %v", in.JobID, err)
	}

	// created_at is never updated on conflict, so the manifest timestamp is
	// stable across replays and the blob bytes come out identical.
	manifest := Manifest{
		JobID:           in.JobID,
		RecipeID:        in.JobID,
		RawObjectKey:    in.Asset.Key,
		ContentSHA256:   in.Asset.SHA256,
		OCRObjectKey:    in.OCR.OCRObjectKey,
		OCREngine:       in.OCR.EngineName,
		OCRVersion:      in.OCR.EngineVersion,
		PageCount:       in.OCR.PageCount,
		Status:          string(constants.StatusSucceeded),
		CreatedAt:       row.CreatedAt.UTC().Format(time.RFC3339),
		ManifestVersion: constants.ManifestVersion,
	}
	body, err := manifest.Encode()
	if err != nil {
		return PersistResult{}, common.Wrapf(common.ErrConflict, "manifest for %s: %v", in.JobID, err)
	}

	manifestKey := constants.ManifestKey(in.JobID)
	if err := s.blobs.Put(ctx, s.artifactBucket, manifestKey, constants.ContentTypeJSON, body); err != nil {
		return PersistResult{}, err
	}

	flipped, err := s.recipes.SetStatus(ctx, in.JobID, constants.StatusSucceeded, s.clock().UTC())
	if err != nil {
		return PersistResult{}, common.Wrapf(common.ErrTransientIO, "marking recipe %s succeeded: %v", in.JobID, err)
	}
	if !flipped {
		// A replay that lost the race to an earlier success is fine; anything
		// else means the row reached failed underneath us.
		cur, err := s.recipes.GetRecipe(ctx, in.JobID)
		if err != nil {
			return PersistResult{}, common.Wrapf(common.ErrTransientIO, "re-reading recipe %s: %v", in.JobID, err)
		}
		if cur == nil || cur.Status != constants.StatusSucceeded {
			return PersistResult{}, common.Wrapf(common.ErrConflict, "recipe %s could not be marked succeeded", in.JobID)
		}
	}

	s.logger.Info("persist.ok",
		"job_id", in.JobID,
		"manifest_key", manifestKey,
		"sha256", in.Asset.SHA256[:16],
	)
	return PersistResult{RecipeID: in.JobID, ManifestKey: manifestKey}, nil
}
