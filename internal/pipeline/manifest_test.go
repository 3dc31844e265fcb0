package pipeline

import (
	"strings"
	"testing"
)

func validManifest() Manifest {
	return Manifest{
		JobID:           testJobID,
		RecipeID:        testJobID,
		RawObjectKey:    testRawKey,
		ContentSHA256:   strings.Repeat("ab", 32),
		OCRObjectKey:    "artifacts/" + testJobID + "/textract.json",
		OCREngine:       "textract",
		OCRVersion:      "1.0",
		PageCount:       1,
		Status:          "succeeded",
		CreatedAt:       "2026-04-02T09:30:00Z",
		ManifestVersion: "1.0",
	}
}

func TestManifestEncodeValid(t *testing.T) {
	body, err := validManifest().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("empty manifest body")
	}

	// Deterministic output for identical input.
	again, err := validManifest().Encode()
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != string(again) {
		t.Error("encoding is not deterministic")
	}
}

func TestManifestEncodeRejectsBadContent(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Manifest)
	}{
		{"bad digest", func(m *Manifest) { m.ContentSHA256 = "not-hex" }},
		{"zero pages", func(m *Manifest) { m.PageCount = 0 }},
		{"wrong status", func(m *Manifest) { m.Status = "running" }},
		{"empty job id", func(m *Manifest) { m.JobID = "" }},
		{"empty engine", func(m *Manifest) { m.OCREngine = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(&m)
			if _, err := m.Encode(); err == nil {
				t.Error("Encode accepted an invalid manifest")
			}
		})
	}
}
