// Package ratelimit provides distributed rate limiting using Redis.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// RedisRateLimiter implements a distributed token bucket on Redis.
// When Redis is unreachable it degrades to per-process buckets.
type RedisRateLimiter struct {
	client       redis.UniversalClient
	logger       logger.Logger
	config       *RateLimiterConfig
	localBuckets *TokenBucketPool
	now          func() time.Time
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	// Capacity is the bucket size, i.e. the allowed burst
	Capacity int64
	// RefillPerSecond is the steady-state rate
	RefillPerSecond float64
	// EnableLocalFallback enables local token bucket fallback
	EnableLocalFallback bool
	// KeyPrefix is the Redis key prefix
	KeyPrefix string
}

// RateLimiterConfigFrom converts the service configuration.
func RateLimiterConfigFrom(cfg config.RateLimitConfig) *RateLimiterConfig {
	return &RateLimiterConfig{
		Capacity:            int64(cfg.Burst),
		RefillPerSecond:     float64(cfg.RequestsPerMin) / 60.0,
		EnableLocalFallback: true,
		KeyPrefix:           constants.RateLimitKeyPrefix,
	}
}

// Lua script for atomic token bucket operations
const tokenBucketLuaScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now

-- rate is per second, elapsed in ms
local elapsed = math.max(0, now - last_refill)
tokens = math.min(tokens + elapsed * rate / 1000, capacity)

local allowed = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
end

-- time until the requested tokens are available again
local retry_ms = 0
if allowed == 0 then
    retry_ms = math.ceil((requested - tokens) / rate * 1000)
end

redis.call('HMSET', key, 'tokens', tostring(tokens), 'last_refill', now)
redis.call('PEXPIRE', key, math.ceil(capacity / rate * 1000) + 60000)

return {allowed, math.floor(tokens), retry_ms}
`

// NewRedisRateLimiter creates a new Redis-based rate limiter.
//
// Parameters:
//   - client: Redis client
//   - cfg: Rate limiter configuration
//   - log: Logger instance
//
// Returns:
//   - *RedisRateLimiter: Initialized rate limiter
//   - error: Initialization error if any
func NewRedisRateLimiter(client redis.UniversalClient, cfg *RateLimiterConfig, log logger.Logger) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, errors.ErrInvalidConfig("redis client is required")
	}
	if cfg == nil || cfg.Capacity <= 0 || cfg.RefillPerSecond <= 0 {
		return nil, errors.ErrInvalidConfig("rate limiter needs a positive capacity and refill rate")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = constants.RateLimitKeyPrefix
	}

	rl := &RedisRateLimiter{
		client: client,
		logger: log.WithComponent("RedisRateLimiter"),
		config: cfg,
		now:    time.Now,
	}
	if cfg.EnableLocalFallback {
		rl.localBuckets = NewTokenBucketPool(TokenBucketConfig{
			Capacity: float64(cfg.Capacity),
			Rate:     cfg.RefillPerSecond,
		})
	}

	rl.logger.Info(context.Background(), "Redis rate limiter initialized", logger.Fields{
		"capacity":          cfg.Capacity,
		"refill_per_second": cfg.RefillPerSecond,
		"local_fallback":    cfg.EnableLocalFallback,
	})
	return rl, nil
}

// Allow implements service.RateLimiter.
func (rl *RedisRateLimiter) Allow(ctx context.Context, route, clientID string) (service.RateLimitDecision, error) {
	key := rl.buildKey(route, clientID)

	decision, err := rl.executeLuaScript(ctx, key, 1)
	if err == nil {
		return decision, nil
	}

	if rl.localBuckets == nil {
		return service.RateLimitDecision{}, errors.WrapError(err, constants.ErrCodeServerError, "rate limiter unavailable")
	}

	rl.logger.Warn(ctx, "Redis rate limiter unavailable, using local bucket", logger.Fields{
		"key":   key,
		"error": err.Error(),
	})
	bucket := rl.localBuckets.GetOrCreate(key)
	local := service.RateLimitDecision{Limit: int(rl.config.Capacity)}
	if bucket.Allow() {
		local.Allowed = true
	} else {
		local.RetryAfter = bucket.TimeUntilAvailable(1)
	}
	local.Remaining = int(math.Floor(bucket.Available()))
	return local, nil
}

// ResetLimit clears the bucket of (route, clientID).
func (rl *RedisRateLimiter) ResetLimit(ctx context.Context, route, clientID string) error {
	key := rl.buildKey(route, clientID)
	if err := rl.client.Del(ctx, key).Err(); err != nil {
		return errors.WrapError(err, constants.ErrCodeServerError, "failed to reset rate limit")
	}
	if rl.localBuckets != nil {
		rl.localBuckets.Remove(key)
	}

	rl.logger.Debug(ctx, "Rate limit reset", logger.Fields{"key": key})
	return nil
}

// executeLuaScript executes the token bucket Lua script.
func (rl *RedisRateLimiter) executeLuaScript(ctx context.Context, key string, requested int64) (service.RateLimitDecision, error) {
	result, err := rl.client.Eval(ctx, tokenBucketLuaScript, []string{key},
		rl.config.Capacity, rl.config.RefillPerSecond, requested, rl.now().UnixMilli()).Result()
	if err != nil {
		return service.RateLimitDecision{}, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return service.RateLimitDecision{}, fmt.Errorf("unexpected rate limit script result %v", result)
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	retryMs, _ := values[2].(int64)

	return service.RateLimitDecision{
		Allowed:    allowed == 1,
		Limit:      int(rl.config.Capacity),
		Remaining:  int(remaining),
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}

// buildKey builds a Redis key for rate limiting.
func (rl *RedisRateLimiter) buildKey(route, clientID string) string {
	return fmt.Sprintf("%s:%s:%s", rl.config.KeyPrefix, route, clientID)
}

// CleanupLocalBuckets performs cleanup of idle local buckets.
func (rl *RedisRateLimiter) CleanupLocalBuckets(maxIdle time.Duration) int {
	if rl.localBuckets == nil {
		return 0
	}
	removed := rl.localBuckets.Cleanup(maxIdle)
	if removed > 0 {
		rl.logger.Debug(context.Background(), "Cleaned up idle buckets", logger.Fields{"count": removed})
	}
	return removed
}

// LocalLimiter is a process-local service.RateLimiter used when Redis is disabled.
type LocalLimiter struct {
	pool     *TokenBucketPool
	capacity int
}

// NewLocalLimiter creates a LocalLimiter from the service configuration.
func NewLocalLimiter(cfg config.RateLimitConfig) *LocalLimiter {
	return &LocalLimiter{
		pool: NewTokenBucketPool(TokenBucketConfig{
			Capacity: float64(cfg.Burst),
			Rate:     float64(cfg.RequestsPerMin) / 60.0,
		}),
		capacity: cfg.Burst,
	}
}

// Allow implements service.RateLimiter.
func (l *LocalLimiter) Allow(_ context.Context, route, clientID string) (service.RateLimitDecision, error) {
	bucket := l.pool.GetOrCreate(route + ":" + clientID)
	d := service.RateLimitDecision{Limit: l.capacity}
	if bucket.Allow() {
		d.Allowed = true
	} else {
		d.RetryAfter = bucket.TimeUntilAvailable(1)
	}
	d.Remaining = int(math.Floor(bucket.Available()))
	return d, nil
}

var (
	_ service.RateLimiter = (*RedisRateLimiter)(nil)
	_ service.RateLimiter = (*LocalLimiter)(nil)
)
