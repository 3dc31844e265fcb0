package pipeline

import (
	"math"
	"math/rand"
	"time"

	"github.com/recipeworks/photo-worker/internal/common"
)

const jitterFraction = 0.1

// normalizePolicy fills zero fields so a partially configured policy still
// behaves sanely.
func normalizePolicy(cfg common.RetryConfig) common.RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	return cfg
}

// backoffDelay computes the wait before the given retry (attempt starts at
// 1), exponential with a little jitter, capped at MaxBackoff.
func backoffDelay(cfg common.RetryConfig, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt-1))
	jitter := backoff * jitterFraction * (2*rand.Float64() - 1)
	backoff += jitter
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if backoff < 0 {
		backoff = float64(cfg.InitialBackoff)
	}
	return time.Duration(backoff)
}
