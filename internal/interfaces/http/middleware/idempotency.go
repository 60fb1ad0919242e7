package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// IdempotencyKeyHeader is the request header naming a client-chosen idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxIdempotencyKeyLength bounds the key stored in redis.
const maxIdempotencyKeyLength = 128

// IdempotencyMiddleware returns a Gin middleware that runs a request at most once per Idempotency-Key.
// The key is claimed with Redis SETNX for cfg.TTL; a replayed key is rejected with 409 Conflict
// before the handler runs. A request that ends with a 4xx or 5xx status releases its key so
// the client can retry it. Requests without the header pass through unchanged.
// IdempotencyMiddleware 返回一个 Gin 中间件，确保每个 Idempotency-Key 最多执行一次请求。
// 它使用 Redis SETNX 原子地占用该键；重复的键在处理程序运行之前以 409 Conflict 拒绝。
func IdempotencyMiddleware(redisClient redis.UniversalClient, cfg *config.IdempotencyConfig, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || !cfg.Enabled || redisClient == nil {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			abortWithError(c, errors.ErrInvalidRequest("Idempotency-Key is too long").
				WithMetadata("max_length", maxIdempotencyKeyLength))
			return
		}

		ctx := c.Request.Context()
		fields := logger.Fields{"idempotency_key": key, "path": c.FullPath()}

		// SETNX claims the key atomically, so two concurrent replays cannot both pass.
		isNew, err := redisClient.SetNX(ctx, constants.IdempotencyKeyPrefix+key, c.FullPath(), cfg.TTL).Result()
		if err != nil {
			log.Error(ctx, "Redis check for idempotency key failed", err, fields)
			c.Next() // Fail open
			return
		}

		if !isNew {
			log.Warn(ctx, "Idempotency key replayed", fields)
			abortWithError(c, errors.ErrConflict("This request has already been processed.").
				WithMetadata("idempotency_key", key))
			return
		}

		c.Next()

		if c.Writer.Status() < http.StatusBadRequest {
			return
		}
		// The request may have been cancelled; the release must still reach redis.
		if err := redisClient.Del(context.WithoutCancel(ctx), constants.IdempotencyKeyPrefix+key).Err(); err != nil {
			log.Error(ctx, "Failed to release idempotency key", err, fields)
			return
		}
		log.Debug(ctx, "Idempotency key released after failed request", logger.Fields{
			"idempotency_key": key,
			"status":          c.Writer.Status(),
		})
	}
}
