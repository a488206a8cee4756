package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"registrar/internal/ratelimit/models"
)

// slidingWindowScript trims the sorted set to the window, then records the
// request when under limit. Returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, member)
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then
  oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

// RedisBucketStore implements the sliding window over a Redis sorted set so
// every replica shares one window per key.
type RedisBucketStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisBucketStore creates a store using client. Keys are namespaced with
// "registrar:ratelimit:".
func NewRedisBucketStore(client redis.Cmdable) *RedisBucketStore {
	return &RedisBucketStore{client: client, prefix: "registrar:ratelimit:", now: time.Now}
}

// Allow checks if a request is allowed and records it when it is.
func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.now()
	raw, err := slidingWindowScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply length %d", len(raw))
	}

	resetAt := time.UnixMilli(raw[2]).Add(window)
	result := &models.RateLimitResult{
		Allowed: raw[0] == 1,
		Limit:   limit,
		ResetAt: resetAt,
	}
	if result.Allowed {
		result.Remaining = limit - int(raw[1])
	} else {
		result.RetryAfter = retryAfter(now, resetAt)
	}
	return result, nil
}

// Reset clears the window for key.
func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
