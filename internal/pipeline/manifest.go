package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed manifest_schema.json
var manifestSchemaJSON string

var manifestSchema = jsonschema.MustCompileString("manifest_schema.json", manifestSchemaJSON)

// Manifest is the completion artifact tying records and blobs together.
// Field values are derived only from durable state, so retries produce
// byte-identical content.
type Manifest struct {
	JobID           string `json:"job_id"`
	RecipeID        string `json:"recipe_id"`
	RawObjectKey    string `json:"s3_raw_key"`
	ContentSHA256   string `json:"content_sha256"`
	OCRObjectKey    string `json:"s3_ocr_key"`
	OCREngine       string `json:"ocr_engine"`
	OCRVersion      string `json:"ocr_version"`
	PageCount       int    `json:"page_count"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	ManifestVersion string `json:"manifest_version"`
}

// Encode renders the manifest as validated, deterministic JSON.
func (m Manifest) Encode() ([]byte, error) {
	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	var doc any
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding manifest for validation: %w", err)
	}
	if err := manifestSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("manifest failed schema validation: %w", err)
	}
	return body, nil
}
