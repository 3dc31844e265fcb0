package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/recipeworks/photo-worker/constants"
)

// Job is one row in jobs: the durable execution state the worker pool polls.
// Immutable identity fields come from the submission; the rest is runtime
// bookkeeping.
type Job struct {
	ID                  string
	Bucket              string
	ObjectKey           string
	ExpectedContentType string
	Status              constants.RecipeStatus
	Attempt             int
	LastError           string
	LeaseExpiresAt      time.Time
	NextRunAt           time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type JobRepository interface {
	// Enqueue inserts a queued job row. Returns false when the id already
	// exists (idempotent submission, including after a terminal state).
	Enqueue(ctx context.Context, job Job, now time.Time) (bool, error)
	Get(ctx context.Context, id string) (*Job, error)
	// ClaimNext leases one due job via compare-and-swap, enforcing
	// single-flight per job id. Returns nil when nothing is claimable.
	ClaimNext(ctx context.Context, now time.Time, lease time.Duration) (*Job, error)
	// MarkTerminal resolves the job; terminal rows are never claimed again.
	MarkTerminal(ctx context.Context, id string, status constants.RecipeStatus, errMsg string, now time.Time) error
	// Release puts a running job back in the queue, used when execution was
	// interrupted by shutdown rather than resolved.
	Release(ctx context.Context, id string, now time.Time) error
}

type jobRepo struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

func NewJobRepository(db *sql.DB, dialect Dialect, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db, dialect: dialect, log: log}
}

const enqueueJobSQL = `
INSERT INTO jobs (id, bucket, object_key, expected_content_type, status, attempt, next_run_at, created_at, updated_at)
VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

func (r *jobRepo) Enqueue(ctx context.Context, job Job, now time.Time) (bool, error) {
	var expected any
	if job.ExpectedContentType != "" {
		expected = job.ExpectedContentType
	}
	res, err := r.db.ExecContext(ctx, rebind(r.dialect, enqueueJobSQL),
		job.ID, job.Bucket, job.ObjectKey, expected, now, now, now)
	if err != nil {
		r.log.Error("job enqueue failed", "job_id", job.ID, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const getJobSQL = `
SELECT id, bucket, object_key, expected_content_type, status, attempt, last_error,
       lease_expires_at, next_run_at, created_at, updated_at
FROM jobs WHERE id = ?`

func (r *jobRepo) Get(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, rebind(r.dialect, getJobSQL), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

const dueJobsSQL = `
SELECT id FROM jobs
WHERE next_run_at <= ?
  AND (status = 'queued' OR (status = 'running' AND lease_expires_at <= ?))
ORDER BY next_run_at
LIMIT 10`

const claimJobSQL = `
UPDATE jobs
SET status = 'running', attempt = attempt + 1, lease_expires_at = ?, updated_at = ?
WHERE id = ?
  AND (status = 'queued' OR (status = 'running' AND lease_expires_at <= ?))`

func (r *jobRepo) ClaimNext(ctx context.Context, now time.Time, lease time.Duration) (*Job, error) {
	rows, err := r.db.QueryContext(ctx, rebind(r.dialect, dueJobsSQL), now, now)
	if err != nil {
		return nil, err
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range candidates {
		res, err := r.db.ExecContext(ctx, rebind(r.dialect, claimJobSQL),
			now.Add(lease), now, id, now)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// Lost the race to another worker; try the next candidate.
			continue
		}
		job, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		r.log.Debug("job claimed", "job_id", id, "attempt", job.Attempt)
		return job, nil
	}
	return nil, nil
}

const markTerminalSQL = `
UPDATE jobs
SET status = ?, last_error = ?, lease_expires_at = NULL, updated_at = ?
WHERE id = ? AND status = 'running'`

func (r *jobRepo) MarkTerminal(ctx context.Context, id string, status constants.RecipeStatus, errMsg string, now time.Time) error {
	if !status.Terminal() {
		return errors.New("MarkTerminal requires a terminal status")
	}
	var lastErr any
	if errMsg != "" {
		lastErr = errMsg
	}
	_, err := r.db.ExecContext(ctx, rebind(r.dialect, markTerminalSQL),
		string(status), lastErr, now, id)
	if err != nil {
		r.log.Error("job terminal update failed", "job_id", id, "status", status, "error", err)
	}
	return err
}

const releaseJobSQL = `
UPDATE jobs
SET status = 'queued', lease_expires_at = NULL, next_run_at = ?, updated_at = ?
WHERE id = ? AND status = 'running'`

func (r *jobRepo) Release(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, rebind(r.dialect, releaseJobSQL), now, now, id)
	if err != nil {
		r.log.Error("job release failed", "job_id", id, "error", err)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job      Job
		status   string
		expected sql.NullString
		lastErr  sql.NullString
		lease    sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.Bucket, &job.ObjectKey, &expected, &status, &job.Attempt, &lastErr,
		&lease, &job.NextRunAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Status = constants.RecipeStatus(status)
	job.ExpectedContentType = expected.String
	job.LastError = lastErr.String
	if lease.Valid {
		job.LeaseExpiresAt = lease.Time
	}
	return &job, nil
}
