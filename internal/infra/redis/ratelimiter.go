package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/concur-gateway/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit"

// checkAndIncrementScript runs atomically on the Redis node owning the key, so
// every update for one key is serialized. Times are unix milliseconds supplied
// by the caller.
var checkAndIncrementScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local start = tonumber(redis.call("HGET", KEYS[1], "start"))
if start == nil or now >= start + window then
  redis.call("HSET", KEYS[1], "start", now, "count", 1)
  redis.call("PEXPIRE", KEYS[1], window)
  return {1, now}
end
local count = redis.call("HINCRBY", KEYS[1], "count", 1)
return {count, start}
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a distributed fixed-window limiter backed by Redis.
type RedisRateLimiter struct {
	client goredis.Scripter
	now    func() time.Time
	script *goredis.Script
}

func NewRedisRateLimiter(client goredis.Scripter) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, time.Now)
}

func newRedisRateLimiter(client goredis.Scripter, nowFn func() time.Time) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &RedisRateLimiter{
		client: client,
		now:    nowFn,
		script: checkAndIncrementScript,
	}, nil
}

func (r *RedisRateLimiter) CheckAndIncrement(
	ctx context.Context,
	key ratelimit.Key,
	limit int,
	window time.Duration,
) (ratelimit.Decision, error) {
	if r == nil || r.client == nil || r.script == nil {
		return ratelimit.Decision{}, fmt.Errorf("rate limiter is not initialized")
	}
	if err := key.Validate(); err != nil {
		return ratelimit.Decision{}, err
	}
	if limit <= 0 {
		return ratelimit.Decision{}, fmt.Errorf("limit must be positive")
	}
	if window < time.Millisecond {
		return ratelimit.Decision{}, fmt.Errorf("window must be at least one millisecond")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	redisKey := fmt.Sprintf("%s:%s", keyPrefix, key.String())
	nowMillis := r.now().UTC().UnixMilli()

	result, err := r.script.Run(ctx, r.client, []string{redisKey}, nowMillis, window.Milliseconds()).Int64Slice()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	if len(result) != 2 {
		return ratelimit.Decision{}, fmt.Errorf("unexpected rate limit script result: %v", result)
	}

	windowStart := time.UnixMilli(result[1]).UTC()
	return ratelimit.NewDecision(int(result[0]), limit, windowStart, window), nil
}
