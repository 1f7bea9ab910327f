package videos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const statusCacheTTL = time.Hour

// StatusCache caches status projections of ready videos in Redis. Only ready
// projections are cached: once a record is ready its playback fields never
// change, so a cached entry can never be stale.
type StatusCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStatusCache creates a cache. A nil client yields a cache that always
// misses.
func NewStatusCache(client *redis.Client, logger *zap.Logger) *StatusCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusCache{client: client, logger: logger}
}

func statusCacheKey(uploadID string) string {
	return "video:status:" + uploadID
}

// Get returns a cached projection, or nil on miss.
func (c *StatusCache) Get(ctx context.Context, uploadID string) map[string]any {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, statusCacheKey(uploadID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("status cache get failed", zap.Error(err))
		}
		return nil
	}
	var projection map[string]any
	if err := json.Unmarshal(raw, &projection); err != nil {
		return nil
	}
	return projection
}

// Set stores a ready projection. Failures are logged and ignored; the store
// remains the source of truth.
func (c *StatusCache) Set(ctx context.Context, uploadID string, projection map[string]any) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(projection)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statusCacheKey(uploadID), raw, statusCacheTTL).Err(); err != nil {
		c.logger.Warn("status cache set failed", zap.Error(err))
	}
}
