// Package runtime drives durable job execution: submissions become jobs
// table rows, and a polling worker pool claims, runs, and resolves them.
// Leases make crashed executions reclaimable; the compare-and-swap claim
// keeps each job single-flight.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/recipeworks/photo-worker/constants"
	"github.com/recipeworks/photo-worker/internal/common"
	"github.com/recipeworks/photo-worker/internal/intake"
	"github.com/recipeworks/photo-worker/internal/pipeline"
	"github.com/recipeworks/photo-worker/internal/repository"
	"github.com/recipeworks/photo-worker/internal/statuscache"
)

type Runtime struct {
	jobs      repository.JobRepository
	processor *pipeline.Processor
	cache     *statuscache.Cache
	cfg       common.WorkerConfig
	clock     func() time.Time
	logger    *slog.Logger
}

func New(jobs repository.JobRepository, processor *pipeline.Processor, cache *statuscache.Cache, cfg common.WorkerConfig, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 10 * time.Minute
	}
	return &Runtime{
		jobs:      jobs,
		processor: processor,
		cache:     cache,
		cfg:       cfg,
		clock:     time.Now,
		logger:    logger,
	}
}

// Submit enqueues one submission. Duplicate job ids are a no-op at every
// point in the lifecycle: before, during, and after execution.
func (r *Runtime) Submit(ctx context.Context, sub intake.Submission) error {
	if _, err := uuid.Parse(sub.JobID); err != nil {
		return fmt.Errorf("job_id %q is not a valid uuid: %w", sub.JobID, err)
	}

	if status := r.cache.GetTerminal(ctx, sub.JobID); status != "" {
		r.logger.Info("submission already resolved", "job_id", sub.JobID, "status", status)
		return nil
	}

	created, err := r.jobs.Enqueue(ctx, repository.Job{
		ID:                  sub.JobID,
		Bucket:              sub.Bucket,
		ObjectKey:           sub.Key,
		ExpectedContentType: sub.ExpectedContentType,
	}, r.clock().UTC())
	if err != nil {
		return fmt.Errorf("enqueueing job %s: %w", sub.JobID, err)
	}
	if !created {
		r.logger.Info("submission already enqueued", "job_id", sub.JobID)
		return nil
	}
	r.logger.Info("job enqueued", "job_id", sub.JobID, "bucket", sub.Bucket, "key", sub.Key)
	return nil
}

// ProcessOne claims a due job and runs it to resolution. Returns false when
// no job was claimable.
func (r *Runtime) ProcessOne(ctx context.Context) (bool, error) {
	job, err := r.jobs.ClaimNext(ctx, r.clock().UTC(), r.cfg.LeaseDuration)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.JobTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
		defer cancel()
	}

	result, procErr := r.processor.Process(runCtx, pipeline.JobSpec{
		JobID:               job.ID,
		Bucket:              job.Bucket,
		Key:                 job.ObjectKey,
		ExpectedContentType: job.ExpectedContentType,
	})

	now := r.clock().UTC()
	switch {
	case procErr == nil:
		if err := r.jobs.MarkTerminal(ctx, job.ID, constants.StatusSucceeded, "", now); err != nil {
			return true, err
		}
		r.cache.SetTerminal(ctx, job.ID, constants.StatusSucceeded)
		r.logger.Info("job resolved", "job_id", job.ID, "status", result.Status, "manifest_key", result.ManifestKey)
		return true, nil

	case errors.Is(procErr, context.Canceled), errors.Is(procErr, context.DeadlineExceeded):
		// Interrupted, not resolved: shutdown or the per-job time budget ran
		// out mid-flight. Either way partial writes may exist (a recipe row
		// at running), so the job must stay claimable; a later attempt
		// re-runs the idempotent stages and drives the row to a terminal
		// status. Marking the job failed here would strand that row.
		if err := r.jobs.Release(context.WithoutCancel(ctx), job.ID, now); err != nil {
			return true, err
		}
		if ctx.Err() != nil {
			r.logger.Info("job released on shutdown", "job_id", job.ID)
			return true, procErr
		}
		r.logger.Warn("job released after timeout", "job_id", job.ID, "timeout", r.cfg.JobTimeout)
		return true, nil

	default:
		if err := r.jobs.MarkTerminal(ctx, job.ID, constants.StatusFailed, procErr.Error(), now); err != nil {
			return true, err
		}
		r.cache.SetTerminal(ctx, job.ID, constants.StatusFailed)
		return true, nil
	}
}

// Run starts the polling pool and blocks until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.PoolSize; i++ {
		worker := i
		g.Go(func() error {
			return r.workerLoop(ctx, worker)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runtime) workerLoop(ctx context.Context, worker int) error {
	log := r.logger.With("worker", worker)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		claimed, err := r.ProcessOne(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			log.Error("job processing failed", "error", err)
		}
		if claimed {
			// Something was due; check again immediately.
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
