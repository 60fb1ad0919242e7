// Package repository 定义领域仓储接口
// 仓储接口遵循 DDD 原则，定义风险快照与告警时间线的持久化契约
package repository

import (
	"context"

	"github.com/turtacn/fincore-risk/internal/domain/models"
)

// SnapshotRepository 定义风险快照仓储接口
// 实现类：internal/infrastructure/persistence/postgres/snapshot_repository.go
type SnapshotRepository interface {
	// SaveSnapshot 保存一次计算得到的完整快照
	// 参数：
	//   - ctx: 请求上下文
	//   - snapshot: 快照及其全部实体画像
	// 返回：
	//   - error: 保存失败时返回错误，快照不会被部分写入
	SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error

	// LatestSnapshot 返回最近一次保存的快照
	// 尚无快照时返回 (nil, nil)，调用方据此将本次计算视为首次计算
	LatestSnapshot(ctx context.Context) (*models.Snapshot, error)

	// GetProfile 返回最新快照中某个实体的风险画像
	// 返回：
	//   - *models.EntityRiskProfile: 实体画像
	//   - error: 实体不存在时返回 not_found 错误
	GetProfile(ctx context.Context, entityID string) (*models.EntityRiskProfile, error)
}

// AlertRepository 定义告警时间线仓储接口
// 实现类：internal/infrastructure/persistence/postgres/alert_repository.go
type AlertRepository interface {
	// AppendAlerts 追加告警条目，已存在的 ID 会被忽略
	AppendAlerts(ctx context.Context, alerts []models.AlertEntry) error

	// ListAlerts 按时间倒序返回告警
	// 参数：
	//   - ctx: 请求上下文
	//   - entityID: 为空时返回所有实体的告警
	//   - limit: 返回条数上限
	ListAlerts(ctx context.Context, entityID string, limit int) ([]models.AlertEntry, error)
}
