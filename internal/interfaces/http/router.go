// Package http exposes the risk engine over a Gin HTTP API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/fincore-risk/internal/application/dto"
	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/internal/infrastructure/monitoring"
	"github.com/turtacn/fincore-risk/internal/interfaces/http/handlers"
	"github.com/turtacn/fincore-risk/internal/interfaces/http/middleware"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// RouterDeps groups the collaborators of the router. RateLimiter and Redis are
// optional; without them the matching middleware is skipped.
type RouterDeps struct {
	Health      *handlers.HealthHandler
	Risk        *handlers.RiskHandler
	Metrics     *monitoring.Metrics
	RateLimiter service.RateLimiter
	Redis       redis.UniversalClient

	// Gatherer backs /metrics; nil uses the default prometheus registry.
	Gatherer prometheus.Gatherer

	// Tracer starts the server spans; nil uses the global tracer provider.
	Tracer trace.Tracer
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	config *config.Config
	logger logger.Logger
	deps   RouterDeps
	server *http.Server
}

// NewRouter 创建路由器
func NewRouter(cfg *config.Config, deps RouterDeps, log logger.Logger) *Router {
	// 设置 Gin 模式
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine: gin.New(),
		config: cfg,
		logger: log.WithComponent("http"),
		deps:   deps,
	}
	r.setupRoutes()
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	tracer := r.deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(constants.ServiceName)
	}

	// 全局中间件
	r.engine.Use(
		middleware.Recovery(r.logger),
		middleware.RequestID(),
		middleware.ObservabilityMiddleware(tracer, r.deps.Metrics.HTTPRequestsTotal, r.deps.Metrics.HTTPRequestDuration),
		middleware.AccessLog(r.logger),
	)

	// CORS 配置
	origins := r.config.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.engine.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.RequestIDHeader, middleware.IdempotencyKeyHeader, "If-None-Match"},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "ETag", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 健康检查路由
	r.engine.GET("/health", r.deps.Health.HealthCheck)
	r.engine.GET("/health/live", r.deps.Health.LivenessCheck)
	r.engine.GET("/health/ready", r.deps.Health.ReadinessCheck)

	// Prometheus metrics
	metricsHandler := promhttp.Handler()
	if r.deps.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(r.deps.Gatherer, promhttp.HandlerOpts{})
	}
	r.engine.GET("/metrics", gin.WrapH(metricsHandler))

	// Pprof 性能分析（仅在非生产环境）
	if !r.config.Server.IsProduction() {
		pprof.Register(r.engine)
	}

	var limiter service.RateLimiter
	if r.config.RateLimit.Enabled {
		limiter = r.deps.RateLimiter
	}
	rateLimit := middleware.RateLimitMiddleware(limiter, r.deps.Metrics, r.logger)
	idempotency := middleware.IdempotencyMiddleware(r.deps.Redis, &r.config.Idempotency, r.logger)

	// API 路由组
	v1 := r.engine.Group("/api/v1")
	{
		risk := v1.Group("/risk")
		{
			risk.POST("/passes", rateLimit, idempotency, r.deps.Risk.RunPass)
			risk.GET("/entities", middleware.ETagCache(), r.deps.Risk.ListProfiles)
			risk.GET("/entities/:entity_id", middleware.ETagCache(), r.deps.Risk.GetProfile)
		}
		v1.GET("/alerts", middleware.ETagCache(), r.deps.Risk.ListAlerts)
		v1.POST("/classify", rateLimit, r.deps.Risk.Classify)
	}

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		status, body := dto.ErrorResponse(errors.ErrNotFound("route", c.Request.URL.Path), c.GetString(string(constants.ContextKeyTraceID)))
		c.JSON(status, body)
	})
}

// Start 启动 HTTP 服务器, blocking until Stop is called.
func (r *Router) Start() error {
	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	r.server = &http.Server{
		Addr:           addr,
		Handler:        r.engine,
		ReadTimeout:    time.Duration(r.config.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(r.config.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	r.logger.Info(context.Background(), "Starting HTTP server", logger.Fields{"address": addr})

	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}

	r.logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}

// Engine exposes the Gin engine, mainly for tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
