// Package session tracks forced logouts. A user revoked at time T has every
// token issued before T rejected until those tokens would have expired anyway.
package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Revoker interface {
	Revoke(ctx context.Context, userID string, at time.Time) error
	IsRevoked(ctx context.Context, userID string, issuedAt time.Time) bool
}

type MemoryRevoker struct {
	mu       sync.RWMutex
	revoked  map[string]time.Time
	tokenTTL time.Duration
	now      func() time.Time
}

func NewMemoryRevoker(tokenTTL time.Duration) *MemoryRevoker {
	return &MemoryRevoker{
		revoked:  make(map[string]time.Time),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

func (r *MemoryRevoker) Revoke(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	r.revoked[userID] = at
	r.mu.Unlock()
	return nil
}

func (r *MemoryRevoker) IsRevoked(_ context.Context, userID string, issuedAt time.Time) bool {
	r.mu.RLock()
	at, ok := r.revoked[userID]
	r.mu.RUnlock()
	// JWT iat has second precision
	return ok && issuedAt.Before(at.Truncate(time.Second))
}

// Purge forgets revocations older than the token lifetime.
func (r *MemoryRevoker) Purge() int {
	cutoff := r.now().Add(-r.tokenTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for userID, at := range r.revoked {
		if at.Before(cutoff) {
			delete(r.revoked, userID)
			removed++
		}
	}
	return removed
}

const revokedKeyPrefix = "campusline:revoked:"

// RedisRevoker shares revocations between instances; entries expire with the
// token lifetime.
type RedisRevoker struct {
	client   *redis.Client
	tokenTTL time.Duration
	logger   *zap.Logger
}

func NewRedisRevoker(client *redis.Client, tokenTTL time.Duration, logger *zap.Logger) *RedisRevoker {
	return &RedisRevoker{client: client, tokenTTL: tokenTTL, logger: logger}
}

func (r *RedisRevoker) Revoke(ctx context.Context, userID string, at time.Time) error {
	return r.client.Set(ctx, revokedKeyPrefix+userID, at.Unix(), r.tokenTTL).Err()
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, userID string, issuedAt time.Time) bool {
	value, err := r.client.Get(ctx, revokedKeyPrefix+userID).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("revocation lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return false
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false
	}
	return issuedAt.Before(time.Unix(unix, 0))
}
