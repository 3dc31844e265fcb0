// Package pipeline implements the verify, OCR, and persist stages and the
// orchestrator that sequences them under per-stage retry policies. Every
// stage is idempotent so a job can be re-run from the top after a crash or
// lease expiry.
package pipeline

import "github.com/recipeworks/photo-worker/constants"

// VerifyInput locates the source object.
type VerifyInput struct {
	Bucket              string
	Key                 string
	ExpectedContentType string
}

// LocatedAsset is the verification stage's output: identity and metadata of
// the source object, no side effects.
type LocatedAsset struct {
	Bucket      string
	Key         string
	ContentType string
	SizeBytes   int64
	SHA256      string
}

// OCRInput names the object to extract text from. JobID alone determines
// where the engine output blob lands.
type OCRInput struct {
	JobID  string
	Bucket string
	Key    string
}

// OCRSummary is the OCR stage's output. The full engine response lives at
// OCRObjectKey; only the summary travels through the workflow.
type OCRSummary struct {
	OCRObjectKey  string
	EngineName    string
	EngineVersion string
	PageCount     int
}

// PersistInput carries everything the persistence stage writes durably.
type PersistInput struct {
	JobID string
	Asset LocatedAsset
	OCR   OCRSummary
}

// PersistResult points at the completed records.
type PersistResult struct {
	RecipeID    string
	ManifestKey string
}

// Result is the workflow's final output for one job.
type Result struct {
	JobID        string
	Status       constants.RecipeStatus
	RecipeID     string
	RawObjectKey string
	SHA256       string
	OCRObjectKey string
	ManifestKey  string
	PageCount    int
}
