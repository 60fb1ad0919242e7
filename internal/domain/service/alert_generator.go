package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
)

// AlertPolicy holds the tunable parts of the alert rule set.
type AlertPolicy struct {
	// TrendDropDelta is the overall decrease that must be exceeded to raise trend_drop.
	TrendDropDelta int `json:"trend_drop_delta" mapstructure:"trend_drop_delta"`

	// DimensionBreachScore is the dimension score at or above which dimension_breach fires.
	DimensionBreachScore int `json:"dimension_breach_score" mapstructure:"dimension_breach_score"`
}

// DefaultAlertPolicy returns a delta of 10 and a breach score of 90.
func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{
		TrendDropDelta:       constants.DefaultTrendDropDelta,
		DimensionBreachScore: constants.DefaultDimensionBreachScore,
	}
}

// Validate checks the policy bounds.
func (p AlertPolicy) Validate() error {
	if p.TrendDropDelta < 0 || p.TrendDropDelta > constants.MaxScore {
		return errors.ErrInvalidConfig(fmt.Sprintf("trend_drop_delta %d outside [0, 100]", p.TrendDropDelta))
	}
	if p.DimensionBreachScore <= constants.MinScore || p.DimensionBreachScore > constants.MaxScore {
		return errors.ErrInvalidConfig(fmt.Sprintf("dimension_breach_score %d outside (0, 100]", p.DimensionBreachScore))
	}
	return nil
}

// AlertGenerator derives timeline entries from consecutive snapshots.
type AlertGenerator struct {
	classifier *Classifier
	policy     AlertPolicy
	now        func() time.Time
	newID      func() string
}

// AlertGeneratorOption customizes an AlertGenerator.
type AlertGeneratorOption func(*AlertGenerator)

// WithAlertClock overrides the timestamp source.
func WithAlertClock(now func() time.Time) AlertGeneratorOption {
	return func(g *AlertGenerator) { g.now = now }
}

// WithAlertIDs overrides the alert id source.
func WithAlertIDs(newID func() string) AlertGeneratorOption {
	return func(g *AlertGenerator) { g.newID = newID }
}

// NewAlertGenerator creates an AlertGenerator.
func NewAlertGenerator(classifier *Classifier, policy AlertPolicy, opts ...AlertGeneratorOption) (*AlertGenerator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	g := &AlertGenerator{
		classifier: classifier,
		policy:     policy,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// evaluation is the outcome of one rule for one entity.
type evaluation struct {
	key         TrackerKey
	active      bool
	fire        bool
	fingerprint string
	name        string
	severity    constants.Severity
	details     string
}

// Generate evaluates every rule for every current profile, in input order, and returns
// the new alerts. Tracker state is read while deciding and committed once at the end;
// if the commit fails no alerts are returned.
func (g *AlertGenerator) Generate(ctx context.Context, current []models.EntityRiskProfile, prior *models.Snapshot, tracker AlertTracker) ([]models.AlertEntry, error) {
	alerts, changes, err := g.Evaluate(ctx, current, prior, tracker)
	if err != nil {
		return nil, err
	}
	if err := CommitTracker(ctx, tracker, changes); err != nil {
		return nil, err
	}
	return alerts, nil
}

// Evaluate is Generate without the commit. The caller applies the returned changes
// with CommitTracker once the alerts are stored; until then the tracker is untouched
// and re-evaluating the same profiles yields the same alerts.
func (g *AlertGenerator) Evaluate(ctx context.Context, current []models.EntityRiskProfile, prior *models.Snapshot, tracker AlertTracker) ([]models.AlertEntry, TrackerChanges, error) {
	now := g.now().UTC()
	changes := TrackerChanges{Set: make(map[TrackerKey]string)}
	alerts := make([]models.AlertEntry, 0)

	for i := range current {
		profile := current[i]
		var previous *models.EntityRiskProfile
		if p, ok := prior.Profile(profile.EntityID); ok {
			previous = &p
		}

		for _, ev := range g.evaluate(profile, previous) {
			state, tracked, err := tracker.State(ctx, ev.key)
			if err != nil {
				return nil, TrackerChanges{}, errors.WrapError(err, constants.ErrCodeServerError, "alert tracker read failed").
					WithMetadata("tracker_key", ev.key.String())
			}

			if !ev.active {
				if tracked {
					changes.Cleared = append(changes.Cleared, ev.key)
				}
				continue
			}

			if tracked && state == ev.fingerprint {
				continue
			}
			if ev.fire {
				alerts = append(alerts, models.AlertEntry{
					ID:        g.newID(),
					EntityID:  profile.EntityID,
					Name:      ev.name,
					Rule:      ev.key.Rule,
					Dimension: ev.key.Dimension,
					Severity:  ev.severity,
					Details:   ev.details,
					Date:      now,
				})
			}
			changes.Set[ev.key] = ev.fingerprint
		}
	}

	return alerts, changes, nil
}

// CommitTracker applies changes to tracker. An empty batch is not written.
func CommitTracker(ctx context.Context, tracker AlertTracker, changes TrackerChanges) error {
	if changes.Empty() {
		return nil
	}
	if err := tracker.Commit(ctx, changes); err != nil {
		return errors.WrapError(err, constants.ErrCodeServerError, "alert tracker commit failed")
	}
	return nil
}

// evaluate runs the rule set against one entity in the documented order:
// band crossing, trend drop, then one breach check per dimension.
func (g *AlertGenerator) evaluate(profile models.EntityRiskProfile, previous *models.EntityRiskProfile) []evaluation {
	evals := make([]evaluation, 0, 2+len(constants.ScoredDimensions))
	evals = append(evals, g.bandCrossing(profile, previous), g.trendDrop(profile, previous))
	for _, dim := range constants.ScoredDimensions {
		evals = append(evals, g.dimensionBreach(profile, dim))
	}
	return evals
}

// bandCrossing stays active while the overall band is High or above and fires only
// on the pass where the band rose. The fingerprint is the current band, so falling
// back from Severe to High and rising again is a new crossing.
func (g *AlertGenerator) bandCrossing(profile models.EntityRiskProfile, previous *models.EntityRiskProfile) evaluation {
	overall := profile.RiskScores.Overall()
	band := g.classifier.ClassifyScore(overall)
	ev := evaluation{
		key:         TrackerKey{EntityID: profile.EntityID, Rule: constants.AlertRuleBandCrossing},
		active:      band >= constants.BandHigh,
		fingerprint: band.String(),
		severity:    constants.SeverityHigh,
	}
	if !ev.active || previous == nil {
		return ev
	}

	prevOverall := previous.RiskScores.Overall()
	prevBand := g.classifier.ClassifyScore(prevOverall)
	if band > prevBand {
		ev.fire = true
		ev.name = fmt.Sprintf("Overall risk entered %s band", band)
		ev.details = fmt.Sprintf("%s (%s): overall score rose from %d (%s) to %d (%s)",
			profile.CompanyName, profile.EntityID, prevOverall, prevBand, overall, band)
	}
	return ev
}

// trendDrop fires when the overall score fell by more than the configured delta.
func (g *AlertGenerator) trendDrop(profile models.EntityRiskProfile, previous *models.EntityRiskProfile) evaluation {
	ev := evaluation{
		key:      TrackerKey{EntityID: profile.EntityID, Rule: constants.AlertRuleTrendDrop},
		severity: constants.SeverityMedium,
	}
	if previous == nil {
		return ev
	}

	overall := profile.RiskScores.Overall()
	prevOverall := previous.RiskScores.Overall()
	drop := prevOverall - overall
	if drop <= g.policy.TrendDropDelta {
		return ev
	}

	ev.active = true
	ev.fire = true
	ev.fingerprint = strconv.Itoa(prevOverall) + "->" + strconv.Itoa(overall)
	ev.name = "Overall risk dropped sharply"
	ev.details = fmt.Sprintf("%s (%s): overall score fell from %d to %d (drop %d exceeds %d)",
		profile.CompanyName, profile.EntityID, prevOverall, overall, drop, g.policy.TrendDropDelta)
	return ev
}

// dimensionBreach fires once per band while a dimension stays at or above the breach score.
func (g *AlertGenerator) dimensionBreach(profile models.EntityRiskProfile, dim constants.Dimension) evaluation {
	score := profile.RiskScores[dim]
	band := g.classifier.ClassifyScore(score)
	ev := evaluation{
		key:         TrackerKey{EntityID: profile.EntityID, Rule: constants.AlertRuleDimensionBreach, Dimension: dim},
		active:      score >= g.policy.DimensionBreachScore,
		fingerprint: band.String(),
		severity:    SeverityForBand(band),
	}
	if !ev.active {
		return ev
	}

	ev.fire = true
	ev.name = fmt.Sprintf("%s risk breach", dim)
	ev.details = fmt.Sprintf("%s (%s): %s score %d (%s) is at or above %d",
		profile.CompanyName, profile.EntityID, dim, score, band, g.policy.DimensionBreachScore)
	return ev
}
