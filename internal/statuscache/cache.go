// Package statuscache fronts the recipes table with a small Redis cache of
// terminal job outcomes, letting duplicate submissions be answered without a
// database round trip. The cache is advisory: a miss or a Redis outage just
// falls through to the database path.
package statuscache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recipeworks/photo-worker/constants"
)

const keyPrefix = "photo-worker:status:"

// Cache is nil-receiver safe so callers can hold a *Cache unconditionally
// and skip the feature when Redis is not configured.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// GetTerminal returns the cached terminal status for the job, or "" when the
// cache has no answer.
func (c *Cache) GetTerminal(ctx context.Context, jobID string) constants.RecipeStatus {
	if c == nil || c.client == nil {
		return ""
	}
	val, err := c.client.Get(ctx, keyPrefix+jobID).Result()
	if errors.Is(err, redis.Nil) {
		return ""
	}
	if err != nil {
		c.logger.Warn("status cache read failed", "job_id", jobID, "error", err)
		return ""
	}
	status := constants.RecipeStatus(val)
	if !status.Terminal() {
		return ""
	}
	return status
}

// SetTerminal records a terminal outcome. Non-terminal statuses are ignored;
// they would only poison duplicate-submission checks.
func (c *Cache) SetTerminal(ctx context.Context, jobID string, status constants.RecipeStatus) {
	if c == nil || c.client == nil || !status.Terminal() {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+jobID, string(status), c.ttl).Err(); err != nil {
		c.logger.Warn("status cache write failed", "job_id", jobID, "error", err)
	}
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
