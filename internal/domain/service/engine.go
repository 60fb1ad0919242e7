package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// EngineConfig bundles every tunable of the risk engine.
type EngineConfig struct {
	Normalization NormalizationTable
	Aggregation   AggregatorConfig
	Thresholds    Thresholds
	Alerts        AlertPolicy

	// FallbackScores overrides the fallback of individual dimensions.
	// Dimensions not listed fall back to constants.DefaultFallbackScore.
	FallbackScores map[constants.Dimension]int

	// CriticalDimensions never fall back. An entity whose critical dimension cannot
	// be normalized is excluded from the pass with MissingDimension.
	CriticalDimensions []constants.Dimension

	// Workers bounds the per-entity fan-out.
	Workers int
}

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Normalization: DefaultNormalizationTable(),
		Aggregation:   DefaultAggregatorConfig(),
		Thresholds:    DefaultThresholds(),
		Alerts:        DefaultAlertPolicy(),
		Workers:       constants.DefaultWorkers,
	}
}

// Validate checks the whole configuration, sub-components included.
func (c EngineConfig) Validate() error {
	if err := c.Normalization.Validate(); err != nil {
		return err
	}
	if err := c.Aggregation.Validate(); err != nil {
		return err
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if err := c.Alerts.Validate(); err != nil {
		return err
	}
	if c.Workers <= 0 {
		return errors.ErrInvalidConfig("workers must be positive")
	}
	for dim, score := range c.FallbackScores {
		if !dim.IsScored() {
			return errors.ErrInvalidConfig(fmt.Sprintf("fallback score given for unknown dimension %q", dim))
		}
		if score < constants.MinScore || score > constants.MaxScore {
			return errors.ErrInvalidConfig(fmt.Sprintf("fallback score of %s outside [0, 100]", dim))
		}
	}
	for _, dim := range c.CriticalDimensions {
		if !dim.IsScored() {
			return errors.ErrInvalidConfig(fmt.Sprintf("unknown critical dimension %q", dim))
		}
	}
	return nil
}

// Result is the complete output of one pass.
type Result struct {
	Snapshot *models.Snapshot             `json:"snapshot"`
	Alerts   []models.AlertEntry          `json:"alerts"`
	Excluded []models.EntityDiagnostic    `json:"excluded"`
	Degraded []models.DimensionDiagnostic `json:"degraded"`

	// TrackerChanges are the tracker transitions behind Alerts.
	TrackerChanges TrackerChanges `json:"-"`
}

// Profiles returns the profiles of the pass in input order.
func (r *Result) Profiles() []models.EntityRiskProfile {
	return r.Snapshot.Profiles
}

// Engine orchestrates normalization, aggregation, classification and alerting over
// a full entity collection. An Engine holds no state between passes.
type Engine struct {
	normalizer *Normalizer
	aggregator *Aggregator
	classifier *Classifier
	alerts     *AlertGenerator

	fallback map[constants.Dimension]int
	critical map[constants.Dimension]bool
	workers  int

	logger  logger.Logger
	metrics Metrics
	now     func() time.Time
	newID   func() string
}

// EngineOption customizes an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	metrics Metrics
	now     func() time.Time
	newID   func() string
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) EngineOption {
	return func(o *engineOptions) { o.metrics = m }
}

// WithClock overrides the time source for snapshots, license expiry and alerts.
func WithClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) { o.now = now }
}

// WithIDGenerator overrides the id source for snapshots and alerts.
func WithIDGenerator(newID func() string) EngineOption {
	return func(o *engineOptions) { o.newID = newID }
}

// NewEngine validates cfg and builds every sub-component.
func NewEngine(cfg EngineConfig, log logger.Logger, opts ...EngineOption) (*Engine, error) {
	o := engineOptions{
		metrics: NewNoopMetrics(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	normalizer, err := NewNormalizer(cfg.Normalization)
	if err != nil {
		return nil, err
	}
	aggregator, err := NewAggregator(cfg.Aggregation)
	if err != nil {
		return nil, err
	}
	classifier, err := NewClassifier(cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	alerts, err := NewAlertGenerator(classifier, cfg.Alerts, WithAlertClock(o.now), WithAlertIDs(o.newID))
	if err != nil {
		return nil, err
	}

	fallback := make(map[constants.Dimension]int, len(constants.ScoredDimensions))
	for _, dim := range constants.ScoredDimensions {
		fallback[dim] = constants.DefaultFallbackScore
	}
	for dim, score := range cfg.FallbackScores {
		fallback[dim] = score
	}
	critical := make(map[constants.Dimension]bool, len(cfg.CriticalDimensions))
	for _, dim := range cfg.CriticalDimensions {
		critical[dim] = true
	}

	return &Engine{
		normalizer: normalizer,
		aggregator: aggregator,
		classifier: classifier,
		alerts:     alerts,
		fallback:   fallback,
		critical:   critical,
		workers:    cfg.Workers,
		logger:     log.WithComponent("RiskEngine"),
		metrics:    o.metrics,
		now:        o.now,
		newID:      o.newID,
	}, nil
}

// Classifier exposes the engine's classifier to presentation-facing callers.
func (e *Engine) Classifier() *Classifier {
	return e.classifier
}

// entityOutcome is the per-entity result slot of the fan-out.
type entityOutcome struct {
	profile  *models.EntityRiskProfile
	excluded *models.EntityDiagnostic
	degraded []models.DimensionDiagnostic
}

// ComputeRisks runs one pass over entities and licenses against the prior snapshot
// and commits the alert tracker before returning.
//
// It returns one profile per entity in input order, except entities excluded with
// MissingDimension, which are reported in Result.Excluded. A missing or duplicate
// entity identifier aborts the pass with InvalidEntityRecord. A nil tracker uses a
// fresh in-memory tracker, so alerts are not de-duplicated across passes.
func (e *Engine) ComputeRisks(ctx context.Context, entities []models.EntityRecord, licenses []models.LicenseRecord, prior *models.Snapshot, tracker AlertTracker) (*Result, error) {
	start := time.Now()
	if tracker == nil {
		tracker = NewMemoryAlertTracker()
	}
	result, err := e.compute(ctx, entities, licenses, prior, tracker, start)
	if err != nil {
		return nil, err
	}
	if err := CommitTracker(ctx, tracker, result.TrackerChanges); err != nil {
		e.metrics.RecordPass("alert_failure", len(entities), time.Since(start))
		return nil, err
	}
	e.finish(ctx, result, len(entities), start)
	return result, nil
}

// ComputeRisksPending is ComputeRisks without the tracker commit. The tracker is
// only read; Result.TrackerChanges must be passed to CommitTracker once the
// snapshot and alerts are durable, so a pass that fails to persist can be rerun
// and raise the same alerts.
func (e *Engine) ComputeRisksPending(ctx context.Context, entities []models.EntityRecord, licenses []models.LicenseRecord, prior *models.Snapshot, tracker AlertTracker) (*Result, error) {
	start := time.Now()
	if tracker == nil {
		tracker = NewMemoryAlertTracker()
	}
	result, err := e.compute(ctx, entities, licenses, prior, tracker, start)
	if err != nil {
		return nil, err
	}
	e.finish(ctx, result, len(entities), start)
	return result, nil
}

func (e *Engine) compute(ctx context.Context, entities []models.EntityRecord, licenses []models.LicenseRecord, prior *models.Snapshot, tracker AlertTracker, start time.Time) (*Result, error) {
	if err := validateEntities(entities); err != nil {
		e.metrics.RecordPass("invalid_input", len(entities), time.Since(start))
		return nil, err
	}

	now := e.now().UTC()
	byEntity := e.groupLicenses(ctx, licenses)

	outcomes := make([]entityOutcome, len(entities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range entities {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = e.computeEntity(entities[i], byEntity[entities[i].EntityID], prior, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.metrics.RecordPass("cancelled", len(entities), time.Since(start))
		return nil, err
	}

	result := &Result{
		Excluded: make([]models.EntityDiagnostic, 0),
		Degraded: make([]models.DimensionDiagnostic, 0),
	}
	profiles := make([]models.EntityRiskProfile, 0, len(entities))
	for _, out := range outcomes {
		for _, d := range out.degraded {
			e.logger.Warn(ctx, "Dimension degraded to fallback score", logger.Fields{
				"entity_id":      d.EntityID,
				"dimension":      string(d.Dimension),
				"fallback_score": d.FallbackScore,
				"reason":         d.Message,
			})
			e.metrics.RecordFallback(d.Dimension)
		}
		result.Degraded = append(result.Degraded, out.degraded...)

		if out.excluded != nil {
			e.logger.Warn(ctx, "Entity excluded from pass", logger.Fields{
				"entity_id": out.excluded.EntityID,
				"code":      string(out.excluded.Code),
				"reason":    out.excluded.Message,
			})
			e.metrics.RecordExclusion(out.excluded.Code)
			result.Excluded = append(result.Excluded, *out.excluded)
			continue
		}
		e.metrics.RecordProfile(out.profile.Type, out.profile.Band)
		profiles = append(profiles, *out.profile)
	}
	result.Snapshot = models.NewSnapshot(e.newID(), now, profiles)

	alerts, changes, err := e.alerts.Evaluate(ctx, profiles, prior, tracker)
	if err != nil {
		e.metrics.RecordPass("alert_failure", len(entities), time.Since(start))
		return nil, err
	}
	result.Alerts = alerts
	result.TrackerChanges = changes
	return result, nil
}

func (e *Engine) finish(ctx context.Context, result *Result, entities int, start time.Time) {
	for _, a := range result.Alerts {
		e.metrics.RecordAlert(a.Rule, a.Severity)
	}
	e.metrics.RecordPass("success", entities, time.Since(start))
	e.logger.Debug(ctx, "Risk pass computed", logger.Fields{
		"snapshot_id": result.Snapshot.ID,
		"profiles":    len(result.Snapshot.Profiles),
		"excluded":    len(result.Excluded),
		"degraded":    len(result.Degraded),
		"alerts":      len(result.Alerts),
	})
}

func (e *Engine) computeEntity(rec models.EntityRecord, licenses []models.LicenseRecord, prior *models.Snapshot, now time.Time) entityOutcome {
	var out entityOutcome
	scores := make(map[constants.Dimension]int, len(constants.ScoredDimensions)+1)
	var criticalFailure error

	for _, dim := range constants.ScoredDimensions {
		score, err := e.scoreDimension(rec, dim)
		if err == nil {
			scores[dim] = score
			continue
		}
		if e.critical[dim] {
			criticalFailure = err
			continue
		}
		scores[dim] = e.fallback[dim]
		out.degraded = append(out.degraded, models.DimensionDiagnostic{
			EntityID:      rec.EntityID,
			Dimension:     dim,
			FallbackScore: e.fallback[dim],
			Message:       err.Error(),
		})
	}

	if op, ok := scores[constants.DimensionOperational]; ok && len(licenses) > 0 {
		scores[constants.DimensionOperational] = ApplyLicensePenalty(op, licenses, now)
	}

	var previous *models.EntityRiskProfile
	if p, ok := prior.Profile(rec.EntityID); ok {
		previous = &p
	}

	overall, trend, err := e.aggregator.Aggregate(rec.EntityID, rec.Type, scores, previous)
	if err != nil {
		msg := err.Error()
		if criticalFailure != nil {
			msg = fmt.Sprintf("%s (%v)", msg, criticalFailure)
		}
		code := constants.ErrCodeMissingDimension
		if riskErr, ok := errors.AsRiskError(err); ok {
			code = riskErr.Code()
		}
		out.excluded = &models.EntityDiagnostic{EntityID: rec.EntityID, Code: code, Message: msg}
		return out
	}

	scores[constants.DimensionOverall] = overall
	out.profile = &models.EntityRiskProfile{
		EntityID:    rec.EntityID,
		CompanyName: rec.CompanyName,
		Type:        rec.Type,
		RiskScores:  scores,
		Trend:       trend,
		Band:        e.classifier.ClassifyScore(overall),
	}
	return out
}

// scoreDimension prefers a directly supplied score over raw indicators.
func (e *Engine) scoreDimension(rec models.EntityRecord, dim constants.Dimension) (int, error) {
	if raw, ok := rec.Scores[dim]; ok {
		return e.normalizer.NormalizeScore(dim, raw)
	}
	if indicators, ok := rec.Indicators[dim]; ok {
		return e.normalizer.Normalize(dim, indicators)
	}
	return 0, errors.ErrInvalidIndicator(dim, "*", "no score or indicators supplied")
}

func (e *Engine) groupLicenses(ctx context.Context, licenses []models.LicenseRecord) map[string][]models.LicenseRecord {
	byEntity := make(map[string][]models.LicenseRecord)
	for _, l := range licenses {
		if strings.TrimSpace(l.EntityID) == "" {
			e.logger.Warn(ctx, "Ignoring license without entity id", logger.Fields{"license_id": l.LicenseID})
			continue
		}
		byEntity[l.EntityID] = append(byEntity[l.EntityID], l)
	}
	return byEntity
}

// validateEntities rejects records that would corrupt identity-based tracking.
func validateEntities(entities []models.EntityRecord) error {
	seen := make(map[string]int, len(entities))
	for i, rec := range entities {
		if strings.TrimSpace(rec.EntityID) == "" {
			return errors.ErrInvalidEntityRecord(i, "missing entity id")
		}
		if first, dup := seen[rec.EntityID]; dup {
			return errors.ErrInvalidEntityRecord(i, fmt.Sprintf("duplicate entity id %q (first at %d)", rec.EntityID, first)).
				WithMetadata("entity_id", rec.EntityID)
		}
		seen[rec.EntityID] = i
	}
	return nil
}
