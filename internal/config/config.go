package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Log         LogConfig         `mapstructure:"log"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Engine      EngineConfig      `mapstructure:"engine"`
	DataSource  DataSourceConfig  `mapstructure:"data_source"`
	Poller      PollerConfig      `mapstructure:"poller"`
	Cache       CacheConfig       `mapstructure:"cache"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
}

type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int      `mapstructure:"write_timeout"` // in seconds
	Environment  string   `mapstructure:"environment"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// IsProduction reports whether debug endpoints must stay disabled.
func (c ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres or sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // in minutes
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	TrackerName  string `mapstructure:"tracker_name"`
}

type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	BatchTimeout int      `mapstructure:"batch_timeout"` // in milliseconds
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	Environment    string  `mapstructure:"environment"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

type DataSourceConfig struct {
	Path string `mapstructure:"path"`
}

type PollerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type CacheConfig struct {
	ProfileTTL      time.Duration `mapstructure:"profile_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requests_per_min"`
	Burst          int  `mapstructure:"burst"`
}

type IdempotencyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// EngineConfig is the file form of service.EngineConfig. Map keys are plain strings
// because the loader lower-cases them; ToService resolves them to dimensions.
type EngineConfig struct {
	Workers              int                                `mapstructure:"workers"`
	Thresholds           service.Thresholds                 `mapstructure:"thresholds"`
	TrendDropDelta       int                                `mapstructure:"trend_drop_delta"`
	DimensionBreachScore int                                `mapstructure:"dimension_breach_score"`
	Weights              map[string]float64                 `mapstructure:"weights"`
	Overrides            map[string]map[string]float64      `mapstructure:"overrides"`
	FallbackScores       map[string]int                     `mapstructure:"fallback_scores"`
	CriticalDimensions   []string                           `mapstructure:"critical_dimensions"`
	Normalization        map[string][]service.IndicatorRule `mapstructure:"normalization"`
}

// ToService converts the file form into a validated service.EngineConfig.
// Missing weights and normalization rules fall back to the defaults.
func (c EngineConfig) ToService() (service.EngineConfig, error) {
	out := service.DefaultEngineConfig()
	out.Workers = c.Workers
	out.Thresholds = c.Thresholds
	out.Alerts = service.AlertPolicy{
		TrendDropDelta:       c.TrendDropDelta,
		DimensionBreachScore: c.DimensionBreachScore,
	}

	if len(c.Weights) > 0 {
		w, err := toWeights(c.Weights)
		if err != nil {
			return out, err
		}
		out.Aggregation.Weights = w
	}
	if len(c.Overrides) > 0 {
		out.Aggregation.Overrides = make(map[string]service.Weights, len(c.Overrides))
		for entityType, raw := range c.Overrides {
			w, err := toWeights(raw)
			if err != nil {
				return out, err
			}
			out.Aggregation.Overrides[entityType] = w
		}
	}

	if len(c.FallbackScores) > 0 {
		out.FallbackScores = make(map[constants.Dimension]int, len(c.FallbackScores))
		for name, score := range c.FallbackScores {
			dim, err := parseDimension(name)
			if err != nil {
				return out, err
			}
			out.FallbackScores[dim] = score
		}
	}
	for _, name := range c.CriticalDimensions {
		dim, err := parseDimension(name)
		if err != nil {
			return out, err
		}
		out.CriticalDimensions = append(out.CriticalDimensions, dim)
	}

	if len(c.Normalization) > 0 {
		for name, rules := range c.Normalization {
			dim, err := parseDimension(name)
			if err != nil {
				return out, err
			}
			out.Normalization[dim] = rules
		}
	}

	return out, out.Validate()
}

func toWeights(raw map[string]float64) (service.Weights, error) {
	w := make(service.Weights, len(raw))
	for name, v := range raw {
		dim, err := parseDimension(name)
		if err != nil {
			return nil, err
		}
		w[dim] = v
	}
	return w, nil
}

func parseDimension(name string) (constants.Dimension, error) {
	dim, ok := constants.ParseDimension(name)
	if !ok || !dim.IsScored() {
		return "", errors.ErrInvalidConfig(fmt.Sprintf("unknown dimension %q", name))
	}
	return dim, nil
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.ErrInvalidConfig(fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.ErrInvalidConfig(fmt.Sprintf("unsupported database.driver %q", c.Database.Driver))
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.ErrInvalidConfig("kafka requires brokers and a topic")
	}
	if c.Poller.Enabled {
		if c.Poller.Interval <= 0 {
			return errors.ErrInvalidConfig("poller.interval must be positive")
		}
		if c.DataSource.Path == "" {
			return errors.ErrInvalidConfig("poller requires data_source.path")
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMin <= 0 || c.RateLimit.Burst <= 0) {
		return errors.ErrInvalidConfig("rate_limit requires positive requests_per_min and burst")
	}
	if _, err := c.Engine.ToService(); err != nil {
		return err
	}
	return nil
}
