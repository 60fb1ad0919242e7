// Package service defines the risk engine's domain services and the ports they depend on.
package service

import (
	"time"

	"github.com/turtacn/fincore-risk/pkg/constants"
)

// Metrics defines the interface for collecting risk engine metrics.
// This abstraction allows the domain and application layers to remain independent of the specific monitoring implementation (e.g., Prometheus).
// Metrics 定义了收集风险引擎指标的接口。
// 这种抽象使领域层和应用层能够独立于具体的监控实现（例如 Prometheus）。
type Metrics interface {
	// RecordPass records the outcome and duration of one recomputation pass.
	// RecordPass 记录一次重新计算的结果和耗时。
	RecordPass(outcome string, entities int, duration time.Duration)

	// RecordProfile records the band of one computed entity profile.
	// RecordProfile 记录单个实体风险画像的分级。
	RecordProfile(entityType string, band constants.Band)

	// RecordFallback records a dimension that degraded to its fallback score.
	// RecordFallback 记录降级为默认分数的维度。
	RecordFallback(dimension constants.Dimension)

	// RecordExclusion records an entity excluded from a pass.
	// RecordExclusion 记录被排除在本次计算之外的实体。
	RecordExclusion(code constants.ErrorCode)

	// RecordAlert records a generated alert.
	// RecordAlert 记录生成的告警。
	RecordAlert(rule constants.AlertRule, severity constants.Severity)

	// RecordCacheAccess records a cache hit or miss.
	// RecordCacheAccess 记录缓存命中或未命中。
	RecordCacheAccess(cacheType string, hit bool)

	// RecordPublish records the outcome of publishing alerts downstream.
	// RecordPublish 记录向下游发布告警的结果。
	RecordPublish(success bool, count int)
}

type noopMetrics struct{}

// NewNoopMetrics returns a Metrics that discards everything.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordPass(string, int, time.Duration)               {}
func (noopMetrics) RecordProfile(string, constants.Band)                {}
func (noopMetrics) RecordFallback(constants.Dimension)                  {}
func (noopMetrics) RecordExclusion(constants.ErrorCode)                 {}
func (noopMetrics) RecordAlert(constants.AlertRule, constants.Severity) {}
func (noopMetrics) RecordCacheAccess(string, bool)                      {}
func (noopMetrics) RecordPublish(bool, int)                             {}
