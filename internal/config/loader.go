package config

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// EnvPrefix prefixes every environment override, e.g. FINCORE_RISK_SERVER_PORT.
const EnvPrefix = "FINCORE_RISK"

// Loader reads the configuration and keeps the viper instance for hot reload.
type Loader struct {
	v   *viper.Viper
	log logger.Logger
}

// NewLoader creates a Loader. An empty configFile searches config.yaml in
// /etc/fincore-risk/ and the working directory.
func NewLoader(configFile string, log logger.Logger) *Loader {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/fincore-risk/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, log: log}
}

// LoadConfig loads the configuration from file, environment variables and defaults.
func LoadConfig(configFile string, log logger.Logger) (*Config, error) {
	return NewLoader(configFile, log).Load()
}

// Load reads the config file, if any, and returns the validated configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, errors.WrapError(err, constants.ErrCodeInvalidConfig, "failed to read config file")
		}
		l.log.Info(context.Background(), "No config file found, using defaults and environment")
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInvalidConfig, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WatchEngine re-reads the config file on change and hands the new engine section to
// apply. A change that fails validation is logged and ignored, so the running engine
// keeps its last good configuration.
func (l *Loader) WatchEngine(apply func(service.EngineConfig) error) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		fields := logger.Fields{"file": e.Name, "op": e.Op.String()}

		cfg, err := l.decode()
		if err != nil {
			l.log.Error(ctx, "Rejected config change", err, fields)
			return
		}
		engineCfg, err := cfg.Engine.ToService()
		if err != nil {
			l.log.Error(ctx, "Rejected engine config change", err, fields)
			return
		}
		if err := apply(engineCfg); err != nil {
			l.log.Error(ctx, "Failed to apply engine config change", err, fields)
			return
		}
		l.log.Info(ctx, "Engine configuration reloaded", fields)
	})
	l.v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fincore")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "fincore_risk")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "fincore-risk.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.tracker_name", "default")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "fincore.risk.alerts")
	v.SetDefault("kafka.batch_timeout", 50)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampling_rate", 1.0)

	v.SetDefault("engine.workers", constants.DefaultWorkers)
	v.SetDefault("engine.thresholds.severe", constants.DefaultSevereThreshold)
	v.SetDefault("engine.thresholds.high", constants.DefaultHighThreshold)
	v.SetDefault("engine.thresholds.elevated", constants.DefaultElevatedThreshold)
	v.SetDefault("engine.thresholds.moderate", constants.DefaultModerateThreshold)
	v.SetDefault("engine.trend_drop_delta", constants.DefaultTrendDropDelta)
	v.SetDefault("engine.dimension_breach_score", constants.DefaultDimensionBreachScore)

	v.SetDefault("data_source.path", "")
	v.SetDefault("poller.enabled", false)
	v.SetDefault("poller.interval", constants.DefaultPollInterval)

	v.SetDefault("cache.profile_ttl", constants.ProfileCacheTTL)
	v.SetDefault("cache.cleanup_interval", constants.ProfileCacheCleanupInterval)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_min", 30)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("idempotency.enabled", false)
	v.SetDefault("idempotency.ttl", "24h")
}
