package runtime

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/recipeworks/photo-worker/constants"
	"github.com/recipeworks/photo-worker/internal/blobstore"
	"github.com/recipeworks/photo-worker/internal/common"
	"github.com/recipeworks/photo-worker/internal/intake"
	"github.com/recipeworks/photo-worker/internal/ocrengine"
	"github.com/recipeworks/photo-worker/internal/pipeline"
	"github.com/recipeworks/photo-worker/internal/repository"
)

const (
	testBucket = "photos"
	testJobID  = "12345678-1234-1234-1234-123456789012"
	testRawKey = "raw/recipe-123.jpg"
)

func fastPolicy() common.RetryConfig {
	return common.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2.0}
}

func fastWorker() common.WorkerConfig {
	return common.WorkerConfig{
		PoolSize:      1,
		PollInterval:  10 * time.Millisecond,
		LeaseDuration: time.Minute,
	}
}

func newTestRuntime(t *testing.T, blobs *blobstore.Memory, engine *ocrengine.Fake, worker common.WorkerConfig, policy common.RetryConfig) (*Runtime, repository.JobRepository, repository.RecipeRepository) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := repository.Migrate(context.Background(), db, nil); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	recipes := repository.NewRecipeRepository(db, repository.DialectSQLite, nil)
	jobs := repository.NewJobRepository(db, repository.DialectSQLite, nil)

	processor := pipeline.NewProcessor(
		pipeline.NewVerifyStage(blobs, 1<<20, nil),
		pipeline.NewOCRStage(engine, blobs, testBucket, nil),
		pipeline.NewPersistStage(recipes, blobs, testBucket, nil),
		nil,
		recipes,
		common.RetryMatrix{Verify: policy, OCR: policy, Persist: policy},
		nil,
		nil,
	)

	rt := New(jobs, processor, nil, worker, nil)
	return rt, jobs, recipes
}

func testSubmission() intake.Submission {
	return intake.Submission{JobID: testJobID, Bucket: testBucket, Key: testRawKey}
}

func TestSubmitIdempotent(t *testing.T) {
	rt, jobs, _ := newTestRuntime(t, blobstore.NewMemory(), &ocrengine.Fake{}, fastWorker(), fastPolicy())
	ctx := context.Background()

	if err := rt.Submit(ctx, testSubmission()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := rt.Submit(ctx, testSubmission()); err != nil {
		t.Fatalf("duplicate Submit: %v", err)
	}

	job, err := jobs.Get(ctx, testJobID)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.Status != constants.StatusQueued || job.Attempt != 0 {
		t.Errorf("job = %+v", job)
	}
}

func TestSubmitRejectsBadJobID(t *testing.T) {
	rt, _, _ := newTestRuntime(t, blobstore.NewMemory(), &ocrengine.Fake{}, fastWorker(), fastPolicy())
	sub := testSubmission()
	sub.JobID = "not-a-uuid"
	if err := rt.Submit(context.Background(), sub); err == nil {
		t.Error("Submit accepted a malformed job id")
	}
}

func TestProcessOneResolvesJob(t *testing.T) {
	blobs := blobstore.NewMemory()
	blobs.Seed(testBucket, testRawKey, "image/jpeg", []byte("jpeg bytes"))
	rt, jobs, _ := newTestRuntime(t, blobs, &ocrengine.Fake{Text: "Roast at 400F"}, fastWorker(), fastPolicy())
	ctx := context.Background()

	if err := rt.Submit(ctx, testSubmission()); err != nil {
		t.Fatal(err)
	}
	claimed, err := rt.ProcessOne(ctx)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !claimed {
		t.Fatal("due job was not claimed")
	}

	job, err := jobs.Get(ctx, testJobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != constants.StatusSucceeded {
		t.Errorf("job = %+v", job)
	}
	if _, ok := blobs.Object(testBucket, constants.ManifestKey(testJobID)); !ok {
		t.Error("manifest missing")
	}

	// Resolved jobs are not claimable again.
	claimed, err = rt.ProcessOne(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if claimed {
		t.Error("terminal job was claimed again")
	}
}

func TestProcessOneRecordsFailure(t *testing.T) {
	// No raw object seeded: verification fails terminally.
	rt, jobs, _ := newTestRuntime(t, blobstore.NewMemory(), &ocrengine.Fake{}, fastWorker(), fastPolicy())
	ctx := context.Background()

	if err := rt.Submit(ctx, testSubmission()); err != nil {
		t.Fatal(err)
	}
	claimed, err := rt.ProcessOne(ctx)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !claimed {
		t.Fatal("due job was not claimed")
	}

	job, err := jobs.Get(ctx, testJobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != constants.StatusFailed || job.LastError == "" {
		t.Errorf("job = %+v", job)
	}
}

func TestProcessOneNothingDue(t *testing.T) {
	rt, _, _ := newTestRuntime(t, blobstore.NewMemory(), &ocrengine.Fake{}, fastWorker(), fastPolicy())
	claimed, err := rt.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if claimed {
		t.Error("claimed a job from an empty table")
	}
}

func TestTimeoutDuringPersistKeepsJobClaimable(t *testing.T) {
	blobs := blobstore.NewMemory()
	blobs.Seed(testBucket, testRawKey, "image/jpeg", []byte("jpeg bytes"))
	// Only the manifest write fails, so the recipe row is already upserted
	// at running when the per-job budget runs out.
	blobs.PutErr = common.Wrapf(common.ErrTransientIO, "s3 put")
	blobs.PutErrKey = constants.ManifestKey(testJobID)

	worker := fastWorker()
	worker.JobTimeout = 50 * time.Millisecond
	policy := common.RetryConfig{MaxAttempts: 1000, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2.0}
	rt, jobs, recipes := newTestRuntime(t, blobs, &ocrengine.Fake{Text: "Boil the pasta"}, worker, policy)
	ctx := context.Background()

	if err := rt.Submit(ctx, testSubmission()); err != nil {
		t.Fatal(err)
	}
	claimed, err := rt.ProcessOne(ctx)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !claimed {
		t.Fatal("due job was not claimed")
	}

	// The timeout is not a verdict: the job goes back to queued and the
	// partially persisted recipe row stays non-terminal.
	job, err := jobs.Get(ctx, testJobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != constants.StatusQueued {
		t.Fatalf("job after timeout = %+v", job)
	}
	row, err := recipes.GetRecipe(ctx, testJobID)
	if err != nil {
		t.Fatal(err)
	}
	if row == nil || row.Status != constants.StatusRunning {
		t.Fatalf("recipe after timeout = %+v", row)
	}

	// Once the blob store recovers, the next attempt resolves both records.
	blobs.PutErr = nil
	claimed, err = rt.ProcessOne(ctx)
	if err != nil {
		t.Fatalf("retry ProcessOne: %v", err)
	}
	if !claimed {
		t.Fatal("released job was not reclaimed")
	}
	job, err = jobs.Get(ctx, testJobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != constants.StatusSucceeded || job.Attempt != 2 {
		t.Errorf("job after retry = %+v", job)
	}
	row, err = recipes.GetRecipe(ctx, testJobID)
	if err != nil {
		t.Fatal(err)
	}
	if row.Status != constants.StatusSucceeded {
		t.Errorf("recipe after retry = %+v", row)
	}
}
