// Package monitoring provides adapters to connect the domain's metrics interface with a concrete implementation like Prometheus.
package monitoring

import (
	"time"

	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/constants"
)

// MetricsAdapter implements the domain's service.Metrics interface, sending metrics to a Prometheus backend.
// MetricsAdapter 实现了域的 service.Metrics 接口，将指标发送到 Prometheus 后端。
type MetricsAdapter struct {
	metrics *Metrics
}

// NewMetricsAdapter wraps a concrete Prometheus Metrics object, satisfying the domain's Metrics interface.
// NewMetricsAdapter 包装具体的 Prometheus Metrics 对象，满足域的 Metrics 接口。
func NewMetricsAdapter(metrics *Metrics) service.Metrics {
	return &MetricsAdapter{metrics: metrics}
}

// RecordPass delegates the call to the underlying Prometheus Metrics object.
// RecordPass 将调用委托给底层的 Prometheus Metrics 对象。
func (a *MetricsAdapter) RecordPass(outcome string, entities int, duration time.Duration) {
	a.metrics.RecordPass(outcome, entities, duration)
}

// RecordProfile delegates the call to the underlying Prometheus Metrics object.
// RecordProfile 将调用委托给底层的 Prometheus Metrics 对象。
func (a *MetricsAdapter) RecordProfile(entityType string, band constants.Band) {
	a.metrics.RecordProfile(entityType, band)
}

// RecordFallback delegates the call to the underlying Prometheus Metrics object.
// RecordFallback 将调用委托给底层的 Prometheus Metrics 对象。
func (a *MetricsAdapter) RecordFallback(dimension constants.Dimension) {
	a.metrics.RecordFallback(dimension)
}

// RecordExclusion delegates the call to the underlying Prometheus Metrics object.
// RecordExclusion 将调用委托给底层的 Prometheus Metrics 对象。
func (a *MetricsAdapter) RecordExclusion(code constants.ErrorCode) {
	a.metrics.RecordExclusion(code)
}

// RecordAlert delegates the call to the underlying Prometheus Metrics object.
// RecordAlert 将调用委托给底层的 Prometheus Metrics 对象。
func (a *MetricsAdapter) RecordAlert(rule constants.AlertRule, severity constants.Severity) {
	a.metrics.RecordAlert(rule, severity)
}

// RecordCacheAccess delegates the call to the underlying Prometheus Metrics object.
// RecordCacheAccess 将调用委托给底层的 Prometheus Metrics 对象。
func (a *MetricsAdapter) RecordCacheAccess(cacheType string, hit bool) {
	a.metrics.RecordCacheAccess(cacheType, hit)
}

// RecordPublish delegates the call to the underlying Prometheus Metrics object.
// RecordPublish 将调用委托给底层的 Prometheus Metrics 对象。
func (a *MetricsAdapter) RecordPublish(success bool, count int) {
	a.metrics.RecordPublish(success, count)
}
