package constants

import "fmt"

// Blob layout. Objects under RawPrefix are owned by the upload source and are
// read-only to this system; everything under ArtifactPrefix and TagsPrefix is
// owned exclusively by the pipeline.
const (
	RawPrefix      = "raw/"
	ArtifactPrefix = "artifacts/"
	TagsPrefix     = "tags/"

	ContentTypeJSON = "application/json"

	// ManifestVersion is stamped into every manifest artifact.
	ManifestVersion = "1.0"
)

// OCRArtifactKey returns the deterministic location of the full OCR engine
// output for a job. Derived only from the job id so re-execution overwrites
// rather than duplicating.
func OCRArtifactKey(jobID string) string {
	return fmt.Sprintf("%s%s/textract.json", ArtifactPrefix, jobID)
}

// ManifestKey returns the deterministic location of the completion manifest.
func ManifestKey(jobID string) string {
	return fmt.Sprintf("%s%s/manifest.json", ArtifactPrefix, jobID)
}

// TagsKey returns the location of an additive tag artifact for one schema
// version. Past versions are never rewritten by newer ones.
func TagsKey(jobID string, schemaVersion int) string {
	return fmt.Sprintf("%s%s/v%d.json", TagsPrefix, jobID, schemaVersion)
}
