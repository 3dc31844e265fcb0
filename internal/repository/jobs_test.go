package repository

import (
	"context"
	"testing"
	"time"

	"github.com/recipeworks/photo-worker/constants"
)

const testJobID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

func testJob() Job {
	return Job{
		ID:                  testJobID,
		Bucket:              "photos",
		ObjectKey:           "raw/recipe-123.jpg",
		ExpectedContentType: "image/jpeg",
	}
}

func TestEnqueueIdempotent(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepository(db, DialectSQLite, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := repo.Enqueue(ctx, testJob(), now)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !created {
		t.Fatal("first enqueue must create")
	}
	created, err = repo.Enqueue(ctx, testJob(), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("duplicate Enqueue: %v", err)
	}
	if created {
		t.Error("duplicate enqueue must be a no-op")
	}
}

func TestClaimNextLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepository(db, DialectSQLite, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.Enqueue(ctx, testJob(), now); err != nil {
		t.Fatal(err)
	}

	job, err := repo.ClaimNext(ctx, now, 10*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if job == nil || job.ID != testJobID {
		t.Fatalf("claimed = %+v", job)
	}
	if job.Status != constants.StatusRunning || job.Attempt != 1 {
		t.Errorf("claimed job = %+v", job)
	}
	if job.ExpectedContentType != "image/jpeg" {
		t.Errorf("expected content type = %q", job.ExpectedContentType)
	}

	// The live lease keeps the job out of reach.
	again, err := repo.ClaimNext(ctx, now.Add(time.Minute), 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if again != nil {
		t.Errorf("leased job was reclaimed: %+v", again)
	}

	// After the lease expires the job is claimable again, attempt bumped.
	expired := now.Add(11 * time.Minute)
	again, err = repo.ClaimNext(ctx, expired, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if again == nil || again.Attempt != 2 {
		t.Fatalf("reclaim after expiry = %+v", again)
	}
}

func TestMarkTerminal(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepository(db, DialectSQLite, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.Enqueue(ctx, testJob(), now); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ClaimNext(ctx, now, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkTerminal(ctx, testJobID, constants.StatusFailed, "source object not found", now); err != nil {
		t.Fatalf("MarkTerminal: %v", err)
	}

	job, err := repo.Get(ctx, testJobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != constants.StatusFailed || job.LastError != "source object not found" {
		t.Errorf("job = %+v", job)
	}

	// Terminal rows are never claimable, even long after any lease window.
	claimed, err := repo.ClaimNext(ctx, now.Add(24*time.Hour), 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if claimed != nil {
		t.Errorf("terminal job was claimed: %+v", claimed)
	}

	if err := repo.MarkTerminal(ctx, testJobID, constants.StatusQueued, "", now); err == nil {
		t.Error("MarkTerminal must reject non-terminal statuses")
	}
}

func TestReleaseRequeues(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepository(db, DialectSQLite, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.Enqueue(ctx, testJob(), now); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ClaimNext(ctx, now, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := repo.Release(ctx, testJobID, now); err != nil {
		t.Fatalf("Release: %v", err)
	}

	job, err := repo.ClaimNext(ctx, now.Add(time.Second), 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.Attempt != 2 {
		t.Fatalf("claim after release = %+v", job)
	}
}

func TestGetMissingJob(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepository(db, DialectSQLite, nil)

	job, err := repo.Get(context.Background(), testJobID)
	if err != nil {
		t.Fatal(err)
	}
	if job != nil {
		t.Errorf("missing job = %+v", job)
	}
}
