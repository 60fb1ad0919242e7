// Package application orchestrates the risk engine with persistence, alert delivery
// and caching.
package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/internal/domain/repository"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// RiskAssessmentService runs recomputation passes.
// RiskAssessmentService 负责执行风险重新计算。
type RiskAssessmentService interface {
	// RunPass computes a new snapshot from the given records against the latest stored
	// snapshot, persists it with its alerts and publishes the alerts.
	// RunPass 基于最新快照计算新快照，持久化快照与告警并发布告警。
	RunPass(ctx context.Context, entities []models.EntityRecord, licenses []models.LicenseRecord) (*service.Result, error)

	// RunFromSource fetches the records from the configured data source and runs a pass.
	// RunFromSource 从数据源拉取记录后执行一次计算。
	RunFromSource(ctx context.Context) (*service.Result, error)

	// ReloadEngine swaps in an engine built from cfg. Passes already running finish
	// on the old engine.
	// ReloadEngine 使用新配置替换引擎，正在执行的计算继续使用旧引擎。
	ReloadEngine(cfg service.EngineConfig) error

	// Classifier returns the classifier of the current engine.
	Classifier() *service.Classifier
}

// CacheInvalidator drops cached read-side state after a pass.
type CacheInvalidator interface {
	Invalidate()
}

// RiskAssessmentDeps groups the collaborators of the assessment service.
type RiskAssessmentDeps struct {
	Snapshots repository.SnapshotRepository
	Alerts    repository.AlertRepository
	Tracker   service.AlertTracker
	Publisher service.AlertPublisher
	Source    service.DataSource
	Cache     CacheInvalidator
	Metrics   service.Metrics

	// Tracer starts the pass spans; nil uses the global tracer provider.
	Tracer trace.Tracer
}

type riskAssessmentServiceImpl struct {
	// mu serializes passes: each pass reads the snapshot and tracker state the
	// previous one wrote.
	mu     sync.Mutex
	engine atomic.Pointer[service.Engine]

	deps       RiskAssessmentDeps
	engineOpts []service.EngineOption
	logger     logger.Logger
}

// NewRiskAssessmentService creates a new RiskAssessmentService.
func NewRiskAssessmentService(cfg service.EngineConfig, deps RiskAssessmentDeps, log logger.Logger, opts ...service.EngineOption) (RiskAssessmentService, error) {
	if deps.Snapshots == nil || deps.Alerts == nil {
		return nil, errors.ErrInvalidConfig("snapshot and alert repositories are required")
	}
	if deps.Tracker == nil {
		deps.Tracker = service.NewMemoryAlertTracker()
	}
	if deps.Publisher == nil {
		deps.Publisher = service.NewNoopPublisher()
	}
	if deps.Metrics == nil {
		deps.Metrics = service.NewNoopMetrics()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(constants.ServiceName)
	}

	s := &riskAssessmentServiceImpl{
		deps:       deps,
		engineOpts: append([]service.EngineOption{service.WithMetrics(deps.Metrics)}, opts...),
		logger:     log.WithComponent("RiskAssessmentService"),
	}
	if err := s.ReloadEngine(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// ReloadEngine implements RiskAssessmentService.
func (s *riskAssessmentServiceImpl) ReloadEngine(cfg service.EngineConfig) error {
	engine, err := service.NewEngine(cfg, s.logger, s.engineOpts...)
	if err != nil {
		return err
	}
	if s.engine.Swap(engine) != nil {
		s.logger.Info(context.Background(), "Risk engine reloaded", logger.Fields{
			"workers":             cfg.Workers,
			"critical_dimensions": len(cfg.CriticalDimensions),
		})
	}
	return nil
}

// Classifier implements RiskAssessmentService.
func (s *riskAssessmentServiceImpl) Classifier() *service.Classifier {
	return s.engine.Load().Classifier()
}

// RunFromSource implements RiskAssessmentService.
func (s *riskAssessmentServiceImpl) RunFromSource(ctx context.Context) (*service.Result, error) {
	if s.deps.Source == nil {
		return nil, errors.ErrInvalidRequest("no data source configured; supply entities in the request")
	}
	entities, licenses, err := s.deps.Source.Fetch(ctx)
	if err != nil {
		s.logger.Error(ctx, "Failed to fetch records from data source", err)
		return nil, err
	}
	return s.RunPass(ctx, entities, licenses)
}

// RunPass implements RiskAssessmentService.
func (s *riskAssessmentServiceImpl) RunPass(ctx context.Context, entities []models.EntityRecord, licenses []models.LicenseRecord) (*service.Result, error) {
	passID := uuid.NewString()
	ctx = context.WithValue(ctx, constants.ContextKeyPassID, passID)
	ctx, span := s.deps.Tracer.Start(ctx, "RiskAssessmentService.RunPass")
	defer span.End()
	span.SetAttributes(
		attribute.String("pass.id", passID),
		attribute.Int("pass.entities", len(entities)),
		attribute.Int("pass.licenses", len(licenses)),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result, err := s.runLocked(ctx, entities, licenses)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error(ctx, "Risk pass failed", err, logger.Fields{"entities": len(entities)})
		return nil, err
	}

	span.SetAttributes(
		attribute.String("snapshot.id", result.Snapshot.ID),
		attribute.Int("pass.alerts", len(result.Alerts)),
		attribute.Int("pass.excluded", len(result.Excluded)),
	)
	span.SetStatus(codes.Ok, "")
	s.logger.Info(ctx, "Risk pass completed", logger.Fields{
		"snapshot_id": result.Snapshot.ID,
		"profiles":    len(result.Snapshot.Profiles),
		"alerts":      len(result.Alerts),
		"excluded":    len(result.Excluded),
		"degraded":    len(result.Degraded),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}

func (s *riskAssessmentServiceImpl) runLocked(ctx context.Context, entities []models.EntityRecord, licenses []models.LicenseRecord) (*service.Result, error) {
	prior, err := s.deps.Snapshots.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Load().ComputeRisksPending(ctx, entities, licenses, prior, s.deps.Tracker)
	if err != nil {
		return nil, err
	}

	// The tracker is committed only once the snapshot and alerts are stored, so a
	// pass that fails here raises the same alerts when it is retried.
	if err := s.deps.Snapshots.SaveSnapshot(ctx, result.Snapshot); err != nil {
		return nil, err
	}
	if err := s.deps.Alerts.AppendAlerts(ctx, result.Alerts); err != nil {
		return nil, err
	}
	if err := service.CommitTracker(ctx, s.deps.Tracker, result.TrackerChanges); err != nil {
		s.logger.Error(ctx, "Failed to commit alert tracker; stored alerts may be raised again", err, logger.Fields{
			"snapshot_id": result.Snapshot.ID,
		})
	}
	if s.deps.Cache != nil {
		s.deps.Cache.Invalidate()
	}

	// Alerts are already on the stored timeline; a delivery failure is reported
	// but does not fail the pass.
	if len(result.Alerts) > 0 {
		if err := s.deps.Publisher.Publish(ctx, result.Alerts); err != nil {
			s.logger.Error(ctx, "Failed to publish alerts", err, logger.Fields{"count": len(result.Alerts)})
			s.deps.Metrics.RecordPublish(false, len(result.Alerts))
		} else {
			s.deps.Metrics.RecordPublish(true, len(result.Alerts))
		}
	}
	return result, nil
}
