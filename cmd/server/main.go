package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/turtacn/fincore-risk/internal/application"
	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/internal/infrastructure/datasource"
	"github.com/turtacn/fincore-risk/internal/infrastructure/messaging"
	"github.com/turtacn/fincore-risk/internal/infrastructure/monitoring"
	"github.com/turtacn/fincore-risk/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/fincore-risk/internal/infrastructure/persistence/redis"
	"github.com/turtacn/fincore-risk/internal/infrastructure/ratelimit"
	"github.com/turtacn/fincore-risk/internal/interfaces/http"
	"github.com/turtacn/fincore-risk/internal/interfaces/http/handlers"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// idleBucketTTL is how long an unused in-process rate limit bucket is kept.
const idleBucketTTL = 10 * time.Minute

func main() {
	configFile := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// Logger for startup
	startupLogger, err := monitoring.NewZapLogger(&config.LogConfig{Level: "info", Format: "json"})
	if err != nil {
		log.Fatalf("Failed to create startup logger: %v", err)
	}

	// Load config
	loader := config.NewLoader(*configFile, startupLogger)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing
	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize tracer", err)
	}
	defer func() { _ = tracing.Shutdown(context.Background()) }()

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	domainMetrics := monitoring.NewMetricsAdapter(metrics)

	// Initialize database
	db, err := postgres.NewDBConnection(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to connect to database", err)
	}
	defer func() { _ = postgres.Close(db) }()

	checks := map[string]handlers.CheckFunc{
		"database": func(ctx context.Context) error { return postgres.Ping(ctx, db) },
	}

	var (
		tracker     service.AlertTracker
		rateLimiter service.RateLimiter
		redisClient goredis.UniversalClient
	)

	// Initialize Redis
	if cfg.Redis.Enabled {
		redisConn := redis.NewRedisConnection(&cfg.Redis, appLogger)
		if err := redisConn.Connect(ctx); err != nil {
			appLogger.Fatal(ctx, "Failed to connect to Redis", err)
		}
		defer func() { _ = redisConn.Close() }()

		redisClient = redisConn.GetClient()
		tracker = redis.NewAlertTracker(redisClient, cfg.Redis.TrackerName)
		checks["redis"] = redisConn.Ping

		if cfg.RateLimit.Enabled {
			limiter, err := ratelimit.NewRedisRateLimiter(redisClient, ratelimit.RateLimiterConfigFrom(cfg.RateLimit), appLogger)
			if err != nil {
				appLogger.Fatal(ctx, "Failed to create rate limiter", err)
			}
			go sweepBuckets(ctx, limiter)
			rateLimiter = limiter
		}
	} else if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewLocalLimiter(cfg.RateLimit)
	}

	// Initialize alert publisher
	var publisher service.AlertPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := messaging.NewKafkaPublisher(cfg.Kafka, appLogger)
		if err != nil {
			appLogger.Fatal(ctx, "Failed to create Kafka publisher", err)
		}
		defer func() { _ = kafkaPublisher.Close() }()
		publisher = kafkaPublisher
	}

	// Initialize data source
	var source service.DataSource
	if cfg.DataSource.Path != "" {
		fileSource, err := datasource.NewFileSource(cfg.DataSource.Path, appLogger)
		if err != nil {
			appLogger.Fatal(ctx, "Failed to open data source", err)
		}
		source = fileSource
	}

	engineCfg, err := cfg.Engine.ToService()
	if err != nil {
		appLogger.Fatal(ctx, "Invalid engine configuration", err)
	}

	// Initialize application services
	snapshots := postgres.NewSnapshotRepository(db, appLogger)
	alerts := postgres.NewAlertRepository(db, appLogger)
	oracle := application.NewRiskOracle(snapshots, alerts, cfg.Cache.ProfileTTL, cfg.Cache.CleanupInterval, domainMetrics, appLogger)
	assessment, err := application.NewRiskAssessmentService(engineCfg, application.RiskAssessmentDeps{
		Snapshots: snapshots,
		Alerts:    alerts,
		Tracker:   tracker,
		Publisher: publisher,
		Source:    source,
		Cache:     oracle,
		Metrics:   domainMetrics,
		Tracer:    tracing.Tracer(),
	}, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to create risk assessment service", err)
	}

	loader.WatchEngine(assessment.ReloadEngine)

	if cfg.Poller.Enabled {
		go application.NewPoller(assessment, cfg.Poller.Interval, appLogger).Run(ctx)
	}

	// Initialize HTTP handlers and router
	router := http.NewRouter(cfg, http.RouterDeps{
		Health:      handlers.NewHealthHandler(checks, appLogger),
		Risk:        handlers.NewRiskHandler(assessment, oracle, appLogger),
		Metrics:     metrics,
		RateLimiter: rateLimiter,
		Redis:       redisClient,
		Tracer:      tracing.Tracer(),
	}, appLogger)

	errCh := make(chan error, 1)
	go func() { errCh <- router.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			appLogger.Error(ctx, "HTTP server failed", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		appLogger.Info(context.Background(), "Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := router.Stop(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "Server forced to shutdown", err)
	}
	appLogger.Info(shutdownCtx, "HTTP server stopped", logger.Fields{"service": cfg.Tracing.ServiceName})
}

// sweepBuckets drops idle local fallback buckets until ctx is done.
func sweepBuckets(ctx context.Context, limiter *ratelimit.RedisRateLimiter) {
	ticker := time.NewTicker(idleBucketTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.CleanupLocalBuckets(idleBucketTTL)
		}
	}
}
