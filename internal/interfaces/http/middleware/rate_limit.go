package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// RateLimitRecorder receives rate limit rejections.
type RateLimitRecorder interface {
	RecordRateLimitHit(route string)
}

// RateLimitMiddleware creates a per-client token bucket middleware keyed by route template and client IP.
// An exhausted bucket answers 429 with Retry-After; a limiter failure lets the request through.
// A nil limiter disables the middleware.
func RateLimitMiddleware(limiter service.RateLimiter, recorder RateLimitRecorder, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		route := c.FullPath()
		clientID := c.ClientIP()

		decision, err := limiter.Allow(ctx, route, clientID)
		if err != nil {
			log.Error(ctx, "rate limiter failed", err, logger.Fields{"route": route, "client_ip": clientID})
			c.Next() // Fail open
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			if recorder != nil {
				recorder.RecordRateLimitHit(route)
			}
			log.Warn(ctx, "rate limit exceeded", logger.Fields{
				"route":       route,
				"client_ip":   clientID,
				"limit":       decision.Limit,
				"retry_after": retryAfter,
			})
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			abortWithError(c, errors.ErrRateLimited(decision.RetryAfter))
			return
		}

		c.Next()
	}
}
