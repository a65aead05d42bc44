package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mailroute/mailroute/internal/model"
)

const (
	authCachePrefix = "auth:ctx:"
	// authKeyIndexPrefix holds, per API key id, the cache keys derived from it
	// so that revocation can drop them without scanning.
	authKeyIndexPrefix = "auth:key:"

	// AuthCacheTTL bounds how long a verified key is trusted without argon2.
	AuthCacheTTL = 5 * time.Minute
)

// cachedAuth is the JSON shape stored in Redis.
type cachedAuth struct {
	KeyID     string   `json:"key_id"`
	KeyPrefix string   `json:"key_prefix"`
	UserID    string   `json:"user_id"`
	Username  string   `json:"username"`
	Scopes    []string `json:"scopes"`
}

// GetAuthContext returns the cached auth context for cacheKey, or nil on miss.
// A corrupted entry is treated as a miss.
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, authCachePrefix+cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth context: %w", err)
	}

	var cached cachedAuth
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		KeyID:     cached.KeyID,
		KeyPrefix: cached.KeyPrefix,
		UserID:    cached.UserID,
		Username:  cached.Username,
		Scopes:    cached.Scopes,
	}, nil
}

// SetAuthContext caches a verified key and indexes it under its key id.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error {
	data, err := json.Marshal(cachedAuth{
		KeyID:     auth.KeyID,
		KeyPrefix: auth.KeyPrefix,
		UserID:    auth.UserID,
		Username:  auth.Username,
		Scopes:    auth.Scopes,
	})
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	indexKey := authKeyIndexPrefix + auth.KeyID
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, authCachePrefix+cacheKey, data, AuthCacheTTL)
		pipe.SAdd(ctx, indexKey, cacheKey)
		pipe.Expire(ctx, indexKey, AuthCacheTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set auth context: %w", err)
	}
	return nil
}

// InvalidateKey drops every cached auth context derived from keyID.
// Called when a key is revoked, rotated or deleted.
func (c *Cache) InvalidateKey(ctx context.Context, keyID string) error {
	indexKey := authKeyIndexPrefix + keyID

	members, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read auth index: %w", err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, authCachePrefix+m)
	}
	keys = append(keys, indexKey)

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete auth contexts: %w", err)
	}
	return nil
}
