// Package redis provides Redis connection management and the redis-backed alert tracker.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// RedisConnection manages Redis client lifecycle and health monitoring.
type RedisConnection struct {
	config *config.RedisConfig
	client redis.UniversalClient
	logger logger.Logger
}

// NewRedisConnection creates a new Redis connection manager instance.
func NewRedisConnection(cfg *config.RedisConfig, log logger.Logger) *RedisConnection {
	return &RedisConnection{
		config: cfg,
		logger: log.WithComponent("RedisConnection"),
	}
}

// Connect establishes the Redis connection and validates connectivity.
//
// Returns:
//   - error: Connection establishment error if any
func (rc *RedisConnection) Connect(ctx context.Context) error {
	if rc.client != nil {
		rc.logger.Warn(ctx, "Redis connection already initialized")
		return nil
	}

	poolSize := rc.config.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{rc.config.Address},
		Password:     rc.config.Password,
		DB:           rc.config.DB,
		PoolSize:     poolSize,
		MinIdleConns: rc.config.MinIdleConns,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		rc.logger.Error(ctx, "Failed to connect to Redis", err, logger.Fields{"address": rc.config.Address})
		return errors.WrapError(err, constants.ErrCodeServerError, "redis connection failed")
	}

	rc.client = client
	rc.logger.Info(ctx, "Redis connection established", logger.Fields{
		"address":   rc.config.Address,
		"db":        rc.config.DB,
		"pool_size": poolSize,
	})
	return nil
}

// GetClient returns the underlying client. It is nil before Connect succeeds.
func (rc *RedisConnection) GetClient() redis.UniversalClient {
	return rc.client
}

// Ping verifies Redis connectivity.
func (rc *RedisConnection) Ping(ctx context.Context) error {
	if rc.client == nil {
		return errors.ErrServerError("redis connection not initialized")
	}
	if err := rc.client.Ping(ctx).Err(); err != nil {
		return errors.WrapError(err, constants.ErrCodeServerError, "redis ping failed")
	}
	return nil
}

// HealthCheck reports connectivity and pool statistics for the health endpoint.
func (rc *RedisConnection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	start := time.Now()
	if err := rc.Ping(ctx); err != nil {
		return nil, err
	}
	stats := rc.client.PoolStats()
	return map[string]interface{}{
		"status":      "healthy",
		"latency_ms":  time.Since(start).Milliseconds(),
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"hits":        stats.Hits,
		"misses":      stats.Misses,
	}, nil
}

// Close gracefully shuts down the connection pool.
func (rc *RedisConnection) Close() error {
	if rc.client == nil {
		return nil
	}
	err := rc.client.Close()
	rc.client = nil
	if err != nil {
		return errors.WrapError(err, constants.ErrCodeServerError, "failed to close redis connection")
	}
	rc.logger.Info(context.Background(), "Redis connection closed")
	return nil
}
