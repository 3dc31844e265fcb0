package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/recipeworks/photo-worker/constants"
	"github.com/recipeworks/photo-worker/internal/common"
	"github.com/recipeworks/photo-worker/internal/metrics"
	"github.com/recipeworks/photo-worker/internal/repository"
)

// JobSpec identifies one unit of work handed to the processor.
type JobSpec struct {
	JobID               string
	Bucket              string
	Key                 string
	ExpectedContentType string
}

// Processor sequences the stages for one job under per-stage retry policies.
// It classifies failures, records terminal recipe state, and returns a
// Result describing what the run produced. It never touches the jobs table;
// that bookkeeping belongs to the runtime that claimed the job.
type Processor struct {
	verify  *VerifyStage
	ocr     *OCRStage
	persist *PersistStage
	tagging *TaggingStage
	recipes repository.RecipeRepository
	retries common.RetryMatrix
	metrics *metrics.Metrics
	clock   func() time.Time
	logger  *slog.Logger
}

func NewProcessor(
	verify *VerifyStage,
	ocr *OCRStage,
	persist *PersistStage,
	tagging *TaggingStage,
	recipes repository.RecipeRepository,
	retries common.RetryMatrix,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		verify:  verify,
		ocr:     ocr,
		persist: persist,
		tagging: tagging,
		recipes: recipes,
		retries: retries,
		metrics: m,
		clock:   time.Now,
		logger:  logger,
	}
}

// Process runs the job front to back. On terminal failure it records a
// failed recipe row and returns the classifying error; the caller decides
// what that means for the job record. A context cancellation comes back
// unwrapped so the caller can requeue instead of resolving.
func (p *Processor) Process(ctx context.Context, job JobSpec) (Result, error) {
	ctx = common.WithJobID(ctx, job.JobID)
	log := p.logger.With("job_id", job.JobID)
	log.Info("job.start", "bucket", job.Bucket, "key", job.Key)

	var asset LocatedAsset
	err := p.runStage(ctx, log, "verify", p.retries.Verify, func(ctx context.Context) error {
		var stageErr error
		asset, stageErr = p.verify.Run(ctx, VerifyInput{
			Bucket:              job.Bucket,
			Key:                 job.Key,
			ExpectedContentType: job.ExpectedContentType,
		})
		return stageErr
	})
	if err != nil {
		return p.resolveFailure(ctx, log, job, "", err)
	}

	var summary OCRSummary
	err = p.runStage(ctx, log, "ocr", p.retries.OCR, func(ctx context.Context) error {
		var stageErr error
		summary, stageErr = p.ocr.Run(ctx, OCRInput{JobID: job.JobID, Bucket: job.Bucket, Key: job.Key})
		return stageErr
	})
	if err != nil {
		return p.resolveFailure(ctx, log, job, asset.SHA256, err)
	}

	var persisted PersistResult
	err = p.runStage(ctx, log, "persist", p.retries.Persist, func(ctx context.Context) error {
		var stageErr error
		persisted, stageErr = p.persist.Run(ctx, PersistInput{JobID: job.JobID, Asset: asset, OCR: summary})
		return stageErr
	})
	if err != nil {
		return p.resolveFailure(ctx, log, job, asset.SHA256, err)
	}

	// Tagging is best effort. The job already succeeded durably; a tagging
	// hiccup is logged and left for a future schema-version run.
	if p.tagging != nil {
		if tagErr := p.tagging.Run(ctx, job.JobID, summary); tagErr != nil {
			log.Warn("tagging failed", "error", tagErr)
		}
	}

	p.metrics.JobResolved(string(constants.StatusSucceeded))
	log.Info("job.succeeded", "recipe_id", persisted.RecipeID, "manifest_key", persisted.ManifestKey)
	return Result{
		JobID:        job.JobID,
		Status:       constants.StatusSucceeded,
		RecipeID:     persisted.RecipeID,
		RawObjectKey: asset.Key,
		SHA256:       asset.SHA256,
		OCRObjectKey: summary.OCRObjectKey,
		ManifestKey:  persisted.ManifestKey,
		PageCount:    summary.PageCount,
	}, nil
}

// runStage executes fn under the stage's retry policy. Terminal errors and
// context cancellation short-circuit; retryable ones burn attempts with
// jittered exponential backoff in between.
func (p *Processor) runStage(ctx context.Context, log *slog.Logger, stage string, cfg common.RetryConfig, fn func(context.Context) error) error {
	cfg = normalizePolicy(cfg)
	var err error
	for attempt := 1; ; attempt++ {
		start := p.clock()
		err = fn(ctx)
		p.metrics.ObserveStage(stage, p.clock().Sub(start))
		if err == nil {
			return nil
		}
		if !common.Retryable(err) {
			log.Warn("stage failed terminally", "stage", stage, "attempt", attempt, "error", err)
			return err
		}
		if attempt >= cfg.MaxAttempts {
			log.Warn("stage exhausted retries", "stage", stage, "attempts", attempt, "error", err)
			return err
		}

		delay := backoffDelay(cfg, attempt)
		log.Info("stage retrying", "stage", stage, "attempt", attempt, "delay", delay, "error", err)
		p.metrics.StageRetried(stage)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// resolveFailure turns a stage error into the job's terminal outcome.
// Cancellation and conflicts propagate untouched; everything else gets a
// failed recipe row so readers see a durable verdict.
func (p *Processor) resolveFailure(ctx context.Context, log *slog.Logger, job JobSpec, digest string, cause error) (Result, error) {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return Result{JobID: job.JobID}, cause
	}
	if common.Fatal(cause) {
		p.metrics.JobResolved("conflict")
		log.Error("job hit a persistence conflict", "error", cause)
		return Result{JobID: job.JobID, Status: constants.StatusFailed}, cause
	}

	now := p.clock().UTC()
	if _, err := p.recipes.UpsertRecipe(ctx, job.JobID, job.Key, digest, constants.StatusFailed, now); err != nil {
		log.Error("recording failed recipe", "error", err)
	}

	p.metrics.JobResolved(string(constants.StatusFailed))
	log.Info("job.failed", "error", cause)
	return Result{JobID: job.JobID, Status: constants.StatusFailed}, cause
}
