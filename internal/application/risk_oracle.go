package application

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/internal/domain/repository"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

const latestSnapshotKey = "snapshot:latest"

// RiskOracle answers read-side queries over the stored snapshots and timeline.
// RiskOracle 提供基于已存储快照和告警时间线的只读查询。
type RiskOracle interface {
	// GetEntityRisk returns the latest profile of one entity, or a not_found error.
	// GetEntityRisk 返回实体的最新风险画像，不存在时返回 not_found 错误。
	GetEntityRisk(ctx context.Context, entityID string) (*models.EntityRiskProfile, error)

	// LatestProfiles returns the latest snapshot, or nil before the first pass.
	LatestProfiles(ctx context.Context) (*models.Snapshot, error)

	// ListAlerts returns timeline entries newest first.
	ListAlerts(ctx context.Context, entityID string, limit int) ([]models.AlertEntry, error)

	// Invalidate drops every cached entry.
	Invalidate()
}

// riskOracle implements RiskOracle with an in-process cache in front of the
// repositories. Concurrent misses for the same key share one repository call.
type riskOracle struct {
	snapshots repository.SnapshotRepository
	alerts    repository.AlertRepository
	cache     *cache.Cache
	group     singleflight.Group
	metrics   service.Metrics
	logger    logger.Logger
}

// NewRiskOracle creates a new RiskOracle.
func NewRiskOracle(snapshots repository.SnapshotRepository, alerts repository.AlertRepository, ttl, cleanup time.Duration, metrics service.Metrics, log logger.Logger) RiskOracle {
	if ttl <= 0 {
		ttl = constants.ProfileCacheTTL
	}
	if cleanup <= 0 {
		cleanup = constants.ProfileCacheCleanupInterval
	}
	if metrics == nil {
		metrics = service.NewNoopMetrics()
	}
	return &riskOracle{
		snapshots: snapshots,
		alerts:    alerts,
		cache:     cache.New(ttl, cleanup),
		metrics:   metrics,
		logger:    log.WithComponent("RiskOracle"),
	}
}

// GetEntityRisk implements RiskOracle.
func (ro *riskOracle) GetEntityRisk(ctx context.Context, entityID string) (*models.EntityRiskProfile, error) {
	key := "profile:" + entityID
	if v, ok := ro.cache.Get(key); ok {
		ro.metrics.RecordCacheAccess("profile", true)
		p := v.(models.EntityRiskProfile)
		return &p, nil
	}
	ro.metrics.RecordCacheAccess("profile", false)

	v, err, shared := ro.group.Do(key, func() (interface{}, error) {
		profile, err := ro.snapshots.GetProfile(ctx, entityID)
		if err != nil {
			return nil, err
		}
		ro.cache.SetDefault(key, *profile)
		return *profile, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		ro.logger.Debug(ctx, "Coalesced profile lookup", logger.Fields{"entity_id": entityID})
	}
	p := v.(models.EntityRiskProfile)
	return &p, nil
}

// LatestProfiles implements RiskOracle.
func (ro *riskOracle) LatestProfiles(ctx context.Context) (*models.Snapshot, error) {
	if v, ok := ro.cache.Get(latestSnapshotKey); ok {
		ro.metrics.RecordCacheAccess("snapshot", true)
		return v.(*models.Snapshot), nil
	}
	ro.metrics.RecordCacheAccess("snapshot", false)

	v, err, _ := ro.group.Do(latestSnapshotKey, func() (interface{}, error) {
		snap, err := ro.snapshots.LatestSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			ro.cache.SetDefault(latestSnapshotKey, snap)
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Snapshot), nil
}

// ListAlerts implements RiskOracle. The timeline grows on every pass and is
// read straight from the repository.
func (ro *riskOracle) ListAlerts(ctx context.Context, entityID string, limit int) ([]models.AlertEntry, error) {
	return ro.alerts.ListAlerts(ctx, entityID, limit)
}

// Invalidate implements RiskOracle and CacheInvalidator.
func (ro *riskOracle) Invalidate() {
	ro.cache.Flush()
}
