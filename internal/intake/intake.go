// Package intake moves job submissions over Kafka. The producer side is used
// by the submission CLI; the consumer side feeds the worker's jobs table.
package intake

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Submission is the wire format on the job topic. JobID doubles as the
// idempotency key for everything downstream.
type Submission struct {
	JobID               string `json:"job_id"`
	Bucket              string `json:"bucket"`
	Key                 string `json:"key"`
	ExpectedContentType string `json:"expected_content_type,omitempty"`
}

// DecodeSubmission parses and validates one message payload.
func DecodeSubmission(data []byte) (Submission, error) {
	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return Submission{}, fmt.Errorf("parsing submission: %w", err)
	}
	if _, err := uuid.Parse(sub.JobID); err != nil {
		return Submission{}, fmt.Errorf("job_id %q is not a valid uuid: %w", sub.JobID, err)
	}
	if sub.Bucket == "" {
		return Submission{}, fmt.Errorf("submission %s has no bucket", sub.JobID)
	}
	if sub.Key == "" {
		return Submission{}, fmt.Errorf("submission %s has no key", sub.JobID)
	}
	return sub, nil
}
