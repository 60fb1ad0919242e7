package service

import (
	"context"
	"time"
)

// RateLimitDecision is the outcome of one rate limit check.
type RateLimitDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter throttles expensive operations per client and route.
// RateLimiter 按客户端和路由对高开销操作进行限流。
type RateLimiter interface {
	// Allow consumes one token for (route, clientID).
	// Allow 为 (route, clientID) 消耗一个令牌。
	Allow(ctx context.Context, route, clientID string) (RateLimitDecision, error)
}
