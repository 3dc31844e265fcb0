package common

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline's failure taxonomy. Adapters wrap their
// underlying causes with one of these so the orchestrator can classify
// without knowing about S3, Textract, or Postgres.
var (
	// ErrNotFound: the source object is absent. Terminal.
	ErrNotFound = errors.New("source object not found")
	// ErrContentMismatch: actual content type disagrees with the hint. Terminal.
	ErrContentMismatch = errors.New("content type mismatch")
	// ErrEngineLimit: input exceeds the OCR engine's size/page ceiling. Terminal.
	ErrEngineLimit = errors.New("input exceeds engine limits")
	// ErrTransientIO: connectivity/timeout talking to the blob store. Retryable.
	ErrTransientIO = errors.New("transient i/o failure")
	// ErrEngineTransient: throttling or transient OCR engine failure. Retryable.
	ErrEngineTransient = errors.New("transient engine failure")
	// ErrConflict: a concurrent writer raced past the idempotency key. This
	// indicates an identity invariant violation; never retried.
	ErrConflict = errors.New("persistence conflict")
)

// Retryable reports whether err may succeed on a later attempt. Unclassified
// errors are treated as retryable so that unknown infrastructure hiccups get
// the benefit of the backoff budget; the terminal sentinels, conflicts, and
// context cancellation never are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrContentMismatch),
		errors.Is(err, ErrEngineLimit),
		errors.Is(err, ErrConflict):
		return false
	default:
		return true
	}
}

// Fatal reports whether err indicates an invariant violation that should be
// escalated rather than recorded as an ordinary job failure.
func Fatal(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Wrap annotates err with a message, preserving the classification chain.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
