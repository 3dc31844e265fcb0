package blobstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/recipeworks/photo-worker/internal/common"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Memory is an in-process Store used by tests and local development. It
// honors the same error classification contract as S3Store.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memoryObject

	// PutErr, when set, is returned by Put. Lets tests simulate a blob
	// store that refuses writes. When PutErrKey is also set, only writes
	// to that key fail.
	PutErr    error
	PutErrKey string
	// HeadErr, when set, is returned by every Head.
	HeadErr error
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject)}
}

func memKey(bucket, key string) string { return bucket + "/" + key }

// Seed stores an object directly, bypassing error injection.
func (m *Memory) Seed(bucket, key, contentType string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(bucket, key)] = memoryObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		modified:    time.Now().UTC(),
	}
}

func (m *Memory) Head(_ context.Context, bucket, key string) (ObjectInfo, error) {
	if m.HeadErr != nil {
		return ObjectInfo{}, m.HeadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return ObjectInfo{}, common.Wrapf(common.ErrNotFound, "head %s/%s", bucket, key)
	}
	return ObjectInfo{
		ContentType:  obj.contentType,
		SizeBytes:    int64(len(obj.data)),
		LastModified: obj.modified,
	}, nil
}

func (m *Memory) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return nil, common.Wrapf(common.ErrNotFound, "get %s/%s", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *Memory) Put(_ context.Context, bucket, key, contentType string, body []byte) error {
	if m.PutErr != nil && (m.PutErrKey == "" || m.PutErrKey == key) {
		return m.PutErr
	}
	m.Seed(bucket, key, contentType, body)
	return nil
}

// Object returns a stored object's bytes and whether it exists.
func (m *Memory) Object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}
