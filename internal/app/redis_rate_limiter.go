package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bookpay/settlement-service/pkg/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// The first hit in a window sets its expiry; later hits only count.
var windowLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisWindowLimiter is the fixed-window limiter backed by Redis, shared by every instance
// of the service. When Redis errors it falls back to the in-process limiter.
type RedisWindowLimiter struct {
	client   redis.UniversalClient
	prefix   string
	max      int
	window   time.Duration
	fallback middleware.Limiter
	logger   *zap.Logger
}

func NewRedisWindowLimiter(client redis.UniversalClient, prefix string, max int, window time.Duration, logger *zap.Logger) *RedisWindowLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "bookpay"
	}
	if max <= 0 {
		max = middleware.DefaultMaxRequests
	}
	if window <= 0 {
		window = middleware.DefaultWindow
	}
	return &RedisWindowLimiter{
		client:   client,
		prefix:   trimmedPrefix + ":rate_limit:webhook",
		max:      max,
		window:   window,
		fallback: middleware.NewWindowLimiter(max, window),
		logger:   logger.Named("redis_rate_limiter"),
	}
}

func (r *RedisWindowLimiter) Allow(ctx context.Context, key string) bool {
	count, err := r.consume(ctx, key)
	if err != nil {
		r.logger.Warn("redis limiter unavailable, using local window", zap.String("key", key), zap.Error(err))
		return r.fallback.Allow(ctx, key)
	}
	// count includes this request, so the request that takes count past max is rejected.
	return count <= int64(r.max)
}

func (r *RedisWindowLimiter) consume(ctx context.Context, key string) (int64, error) {
	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}
	redisKey := fmt.Sprintf("%s:%s", r.prefix, strings.TrimSpace(key))
	result, err := windowLimitScript.Run(ctx, r.client, []string{redisKey}, windowMs).Result()
	if err != nil {
		return 0, err
	}
	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected redis limiter response type: %T", result)
	}
	return count, nil
}
