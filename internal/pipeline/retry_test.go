package pipeline

import (
	"testing"
	"time"

	"github.com/recipeworks/photo-worker/internal/common"
)

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	cfg := common.RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}

	for i := 0; i < 50; i++ {
		first := backoffDelay(cfg, 1)
		if first < 850*time.Millisecond || first > 1150*time.Millisecond {
			t.Fatalf("attempt 1 delay = %v, want ~1s", first)
		}
		third := backoffDelay(cfg, 3)
		if third < 3400*time.Millisecond || third > 4600*time.Millisecond {
			t.Fatalf("attempt 3 delay = %v, want ~4s", third)
		}
		if capped := backoffDelay(cfg, 10); capped > 30*time.Second {
			t.Fatalf("attempt 10 delay = %v, exceeds cap", capped)
		}
	}
}

func TestNormalizePolicyFillsZeroes(t *testing.T) {
	cfg := normalizePolicy(common.RetryConfig{})
	if cfg.MaxAttempts != 1 || cfg.InitialBackoff <= 0 || cfg.MaxBackoff <= 0 || cfg.Multiplier <= 0 {
		t.Errorf("normalized = %+v", cfg)
	}

	full := common.RetryConfig{MaxAttempts: 3, InitialBackoff: 2 * time.Second, MaxBackoff: time.Minute, Multiplier: 2.0}
	if got := normalizePolicy(full); got != full {
		t.Errorf("normalize changed a complete policy: %+v", got)
	}
}
