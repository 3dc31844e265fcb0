package common

import (
	"context"
	"testing"
)

func TestJobIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := JobIDFromContext(ctx); got != "" {
		t.Errorf("untagged context returned %q", got)
	}

	ctx = WithJobID(ctx, "12345678-1234-1234-1234-123456789012")
	if got := JobIDFromContext(ctx); got != "12345678-1234-1234-1234-123456789012" {
		t.Errorf("JobIDFromContext = %q", got)
	}
}
