package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rate limit key scopes.
const (
	rateLimitKeyPrefix = "ratelimit:apikey:"
	rateLimitIPPrefix  = "ratelimit:ip:"

	rateLimitKeyTTL = 120 * time.Second
	rateLimitIPTTL  = 30 * time.Second
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes in one atomic step.
// Returns {allowed, retry_after_seconds, remaining_tokens}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	tokens = math.min(burst, tokens + ((now - last_update) * rate))

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// AllowKey applies the per-API-key management rate limit.
// A zero rate disables the limit.
func (c *Cache) AllowKey(ctx context.Context, keyID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}
	return c.take(ctx, rateLimitKeyPrefix+keyID, float64(ratePerMinute)/60.0, burst, rateLimitKeyTTL)
}

// AllowIP applies the per-client abuse limit on the personal send endpoint.
// The address is hashed before it reaches Redis.
func (c *Cache) AllowIP(ctx context.Context, ip string, ratePerSecond float64, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}
	return c.take(ctx, rateLimitIPPrefix+hashIP(ip), ratePerSecond, burst, rateLimitIPTTL)
}

// take returns an error on Redis failure; callers decide whether to fail open.
func (c *Cache) take(ctx context.Context, key string, rate float64, burst int, ttl time.Duration) (*RateLimitResult, error) {
	now := float64(time.Now().UnixMilli()) / 1000.0

	res, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		rate, burst, now, int(ttl.Seconds()),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("token bucket: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("token bucket: unexpected reply length %d", len(res))
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Second,
		Remaining:  res[2],
	}, nil
}

// hashIP returns a truncated SHA256 of an address.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8])
}
