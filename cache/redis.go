package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"campusline/models"
)

const redisKeyPrefix = "campusline:friendship:"

// RedisCache shares friendship state between server instances. Redis errors
// degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (models.FriendshipState, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("friendship cache get failed", zap.String("key", key), zap.Error(err))
		}
		return models.FriendshipState{}, false
	}

	var state models.FriendshipState
	if err := json.Unmarshal(data, &state); err != nil {
		c.logger.Warn("friendship cache entry corrupt", zap.String("key", key), zap.Error(err))
		return models.FriendshipState{}, false
	}
	return state, true
}

func (c *RedisCache) Set(ctx context.Context, key string, state models.FriendshipState) {
	state.CachedAt = time.Now()
	data, err := json.Marshal(state)
	if err != nil {
		c.logger.Error("failed to marshal friendship state", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("friendship cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = redisKeyPrefix + key
	}
	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		c.logger.Error("failed to invalidate friendship cache", zap.Strings("keys", keys), zap.Error(err))
	}
}
