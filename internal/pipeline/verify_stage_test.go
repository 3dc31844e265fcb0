package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/recipeworks/photo-worker/internal/blobstore"
	"github.com/recipeworks/photo-worker/internal/common"
	"github.com/recipeworks/photo-worker/internal/hashing"
)

func TestVerifyHappyPath(t *testing.T) {
	blobs := blobstore.NewMemory()
	data := []byte("jpeg bytes")
	blobs.Seed(testBucket, testRawKey, "image/jpeg", data)

	stage := NewVerifyStage(blobs, 1<<20, nil)
	asset, err := stage.Run(context.Background(), VerifyInput{
		Bucket:              testBucket,
		Key:                 testRawKey,
		ExpectedContentType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if asset.SHA256 != hashing.SHA256FromBytes(data) {
		t.Errorf("digest = %s", asset.SHA256)
	}
	if asset.SizeBytes != int64(len(data)) || asset.ContentType != "image/jpeg" {
		t.Errorf("asset = %+v", asset)
	}
}

func TestVerifyMissingObject(t *testing.T) {
	stage := NewVerifyStage(blobstore.NewMemory(), 1<<20, nil)
	_, err := stage.Run(context.Background(), VerifyInput{Bucket: testBucket, Key: testRawKey})
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestVerifyContentTypeMismatch(t *testing.T) {
	blobs := blobstore.NewMemory()
	blobs.Seed(testBucket, testRawKey, "application/pdf", []byte("%PDF"))

	stage := NewVerifyStage(blobs, 1<<20, nil)
	_, err := stage.Run(context.Background(), VerifyInput{
		Bucket:              testBucket,
		Key:                 testRawKey,
		ExpectedContentType: "image/jpeg",
	})
	if !errors.Is(err, common.ErrContentMismatch) {
		t.Errorf("error = %v, want content mismatch", err)
	}
}

func TestVerifyNoHintSkipsTypeCheck(t *testing.T) {
	blobs := blobstore.NewMemory()
	blobs.Seed(testBucket, testRawKey, "application/octet-stream", []byte("anything"))

	stage := NewVerifyStage(blobs, 1<<20, nil)
	if _, err := stage.Run(context.Background(), VerifyInput{Bucket: testBucket, Key: testRawKey}); err != nil {
		t.Errorf("Run without hint: %v", err)
	}
}

func TestVerifyObjectTooLarge(t *testing.T) {
	blobs := blobstore.NewMemory()
	blobs.Seed(testBucket, testRawKey, "image/jpeg", make([]byte, 64))

	stage := NewVerifyStage(blobs, 16, nil)
	_, err := stage.Run(context.Background(), VerifyInput{Bucket: testBucket, Key: testRawKey})
	if !errors.Is(err, common.ErrEngineLimit) {
		t.Errorf("error = %v, want engine limit", err)
	}
}
