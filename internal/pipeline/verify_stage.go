package pipeline

import (
	"context"
	"log/slog"

	"github.com/recipeworks/photo-worker/internal/blobstore"
	"github.com/recipeworks/photo-worker/internal/common"
	"github.com/recipeworks/photo-worker/internal/hashing"
)

// VerifyStage confirms the source object is usable and computes its content
// digest. Read-only; safe to repeat any number of times.
type VerifyStage struct {
	blobs          blobstore.Store
	maxObjectBytes int64
	logger         *slog.Logger
}

func NewVerifyStage(blobs blobstore.Store, maxObjectBytes int64, logger *slog.Logger) *VerifyStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerifyStage{blobs: blobs, maxObjectBytes: maxObjectBytes, logger: logger}
}

func (s *VerifyStage) Run(ctx context.Context, in VerifyInput) (LocatedAsset, error) {
	info, err := s.blobs.Head(ctx, in.Bucket, in.Key)
	if err != nil {
		return LocatedAsset{}, err
	}

	if in.ExpectedContentType != "" && info.ContentType != in.ExpectedContentType {
		return LocatedAsset{}, common.Wrapf(common.ErrContentMismatch,
			"expected %s, got %s for %s/%s", in.ExpectedContentType, info.ContentType, in.Bucket, in.Key)
	}
	if s.maxObjectBytes > 0 && info.SizeBytes > s.maxObjectBytes {
		return LocatedAsset{}, common.Wrapf(common.ErrEngineLimit,
			"object is %d bytes, ceiling is %d", info.SizeBytes, s.maxObjectBytes)
	}

	rc, err := s.blobs.Get(ctx, in.Bucket, in.Key)
	if err != nil {
		return LocatedAsset{}, err
	}
	defer rc.Close()

	digest, err := hashing.SHA256FromReader(rc)
	if err != nil {
		return LocatedAsset{}, common.Wrapf(common.ErrTransientIO, "digesting %s/%s: %v", in.Bucket, in.Key, err)
	}

	s.logger.Info("verify.ok",
		"bucket", in.Bucket,
		"key", in.Key,
		"size_bytes", info.SizeBytes,
		"sha256", digest[:16],
	)
	return LocatedAsset{
		Bucket:      in.Bucket,
		Key:         in.Key,
		ContentType: info.ContentType,
		SizeBytes:   info.SizeBytes,
		SHA256:      digest,
	}, nil
}
