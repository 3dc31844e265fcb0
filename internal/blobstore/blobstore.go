// Package blobstore adapts the content-addressable blob service. The S3
// implementation is the production store; Memory backs tests and local runs.
package blobstore

import (
	"context"
	"io"
	"time"
)

// ObjectInfo is the metadata returned by a Head call.
type ObjectInfo struct {
	ContentType  string
	SizeBytes    int64
	ETag         string
	LastModified time.Time
}

// Store is the pipeline's view of the blob service. Implementations wrap
// failures with the common error taxonomy: common.ErrNotFound for absent
// objects, common.ErrTransientIO for connectivity problems.
type Store interface {
	// Head returns object metadata without downloading the content.
	Head(ctx context.Context, bucket, key string) (ObjectInfo, error)
	// Get opens the object for reading. The caller closes the reader.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// Put durably writes body under bucket/key. Returning nil means the
	// write landed; callers rely on this for the OCR stage's durability
	// guarantee.
	Put(ctx context.Context, bucket, key, contentType string, body []byte) error
}

// GetBytes reads the whole object into memory.
func GetBytes(ctx context.Context, s Store, bucket, key string) ([]byte, error) {
	rc, err := s.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
