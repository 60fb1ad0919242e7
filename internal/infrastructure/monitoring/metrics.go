package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/fincore-risk/pkg/constants"
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	PassTotal       *prometheus.CounterVec
	PassDuration    prometheus.Histogram
	PassEntities    prometheus.Gauge
	ProfilesByBand  *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec
	Exclusions      *prometheus.CounterVec
	AlertsGenerated *prometheus.CounterVec
	CacheAccess     *prometheus.CounterVec
	AlertsPublished *prometheus.CounterVec
	RateLimitHits   *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the Prometheus metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	ns := constants.MetricsNamespace

	return &Metrics{
		PassTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "passes_total",
				Help:      "Total number of risk recomputation passes by outcome.",
			},
			[]string{"outcome"},
		),
		PassDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "pass_duration_seconds",
				Help:      "Duration of risk recomputation passes.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		PassEntities: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "pass_entities",
				Help:      "Number of entities submitted to the most recent pass.",
			},
		),
		ProfilesByBand: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "profiles_total",
				Help:      "Total number of computed entity profiles by entity type and band.",
			},
			[]string{"entity_type", "band"},
		),
		Fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "dimension_fallbacks_total",
				Help:      "Total number of dimensions degraded to their fallback score.",
			},
			[]string{"dimension"},
		),
		Exclusions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "entity_exclusions_total",
				Help:      "Total number of entities excluded from a pass.",
			},
			[]string{"code"},
		),
		AlertsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "alerts_generated_total",
				Help:      "Total number of generated alerts by rule and severity.",
			},
			[]string{"rule", "severity"},
		),
		CacheAccess: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "cache_access_total",
				Help:      "Total number of cache lookups by cache and result.",
			},
			[]string{"cache", "result"},
		),
		AlertsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "alerts_published_total",
				Help:      "Total number of alerts handed to the downstream publisher.",
			},
			[]string{"success"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "rate_limit_hits_total",
				Help:      "Total number of requests rejected by the rate limiter.",
			},
			[]string{"route"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "http_request_duration_seconds",
				Help:      "Latency of HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordPass records the outcome of one recomputation pass.
func (m *Metrics) RecordPass(outcome string, entities int, duration time.Duration) {
	m.PassTotal.WithLabelValues(outcome).Inc()
	m.PassDuration.Observe(duration.Seconds())
	m.PassEntities.Set(float64(entities))
}

// RecordProfile records one computed profile.
func (m *Metrics) RecordProfile(entityType string, band constants.Band) {
	if entityType == "" {
		entityType = "unknown"
	}
	m.ProfilesByBand.WithLabelValues(entityType, band.String()).Inc()
}

// RecordFallback records a degraded dimension.
func (m *Metrics) RecordFallback(dimension constants.Dimension) {
	m.Fallbacks.WithLabelValues(string(dimension)).Inc()
}

// RecordExclusion records an excluded entity.
func (m *Metrics) RecordExclusion(code constants.ErrorCode) {
	m.Exclusions.WithLabelValues(string(code)).Inc()
}

// RecordAlert records a generated alert.
func (m *Metrics) RecordAlert(rule constants.AlertRule, severity constants.Severity) {
	m.AlertsGenerated.WithLabelValues(string(rule), string(severity)).Inc()
}

// RecordCacheAccess records a cache hit or miss.
func (m *Metrics) RecordCacheAccess(cacheType string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheAccess.WithLabelValues(cacheType, result).Inc()
}

// RecordPublish records alerts handed to the publisher.
func (m *Metrics) RecordPublish(success bool, count int) {
	m.AlertsPublished.WithLabelValues(strconv.FormatBool(success)).Add(float64(count))
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(route string) {
	m.RateLimitHits.WithLabelValues(route).Inc()
}
