package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "quota:"

// conditionalIncrScript increments KEYS[1] only while it is below ARGV[1].
// The key expires at ARGV[2] (unix ms), the end of its window.
var conditionalIncrScript = redis.NewScript(`
	local limit = tonumber(ARGV[1])
	local current = tonumber(redis.call('GET', KEYS[1]) or '0')

	if current >= limit then
		return {current, 0}
	end

	current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIREAT', KEYS[1], ARGV[2])
	end

	return {current, 1}
`)

// RedisStore keeps one counter key per user per window.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(userID string, windowStart time.Time) string {
	return fmt.Sprintf("%s%s:%d", redisKeyPrefix, userID, windowStart.Unix())
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, userID string, windowStart, windowEnd time.Time, limit int64) (int64, bool, error) {
	res, err := conditionalIncrScript.Run(ctx, s.client,
		[]string{redisKey(userID, windowStart)},
		limit, windowEnd.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis quota script: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redis quota script: unexpected reply length %d", len(res))
	}
	return res[0], res[1] == 1, nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context, userID string, windowStart time.Time) (int64, error) {
	n, err := s.client.Get(ctx, redisKey(userID, windowStart)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis quota get: %w", err)
	}
	return n, nil
}
