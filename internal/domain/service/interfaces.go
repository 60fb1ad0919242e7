package service

import (
	"context"

	"github.com/turtacn/fincore-risk/internal/domain/models"
)

// AlertPublisher delivers newly generated alerts to downstream consumers (timeline views, notifiers).
// AlertPublisher 将新生成的告警投递给下游消费者（时间线视图、通知服务）。
type AlertPublisher interface {
	// Publish sends alerts in the order given.
	// Publish 按给定顺序发送告警。
	Publish(ctx context.Context, alerts []models.AlertEntry) error

	// Close releases the underlying transport.
	Close() error
}

// DataSource supplies the raw entity and license records for a pass.
// DataSource 为一次计算提供原始实体和许可证记录。
type DataSource interface {
	Fetch(ctx context.Context) ([]models.EntityRecord, []models.LicenseRecord, error)
}

type noopPublisher struct{}

// NewNoopPublisher returns an AlertPublisher that drops every alert.
func NewNoopPublisher() AlertPublisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, []models.AlertEntry) error { return nil }
func (noopPublisher) Close() error                                       { return nil }
