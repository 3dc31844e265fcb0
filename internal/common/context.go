package common

import "context"

type contextKey string

const contextKeyJobID contextKey = "job_id"

// WithJobID tags ctx with the job being processed so adapters can log it.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, contextKeyJobID, jobID)
}

// JobIDFromContext extracts the job id from ctx, or "" when absent.
func JobIDFromContext(ctx context.Context) string {
	if jobID, ok := ctx.Value(contextKeyJobID).(string); ok {
		return jobID
	}
	return ""
}
