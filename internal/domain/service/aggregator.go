package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
)

// Weights maps each scored dimension to its share of the overall score.
type Weights map[constants.Dimension]float64

// EqualWeights gives every scored dimension the same share.
func EqualWeights() Weights {
	w := make(Weights, len(constants.ScoredDimensions))
	for _, dim := range constants.ScoredDimensions {
		w[dim] = 1.0 / float64(len(constants.ScoredDimensions))
	}
	return w
}

// Validate requires exactly the five scored dimensions, non-negative, summing to 1.0.
func (w Weights) Validate() error {
	sum := 0.0
	for dim, v := range w {
		if !dim.IsScored() {
			return errors.ErrInvalidConfig(fmt.Sprintf("weight given for unknown dimension %q", dim))
		}
		if v < 0 || math.IsNaN(v) {
			return errors.ErrInvalidConfig(fmt.Sprintf("weight of %s must be non-negative", dim))
		}
		sum += v
	}
	for _, dim := range constants.ScoredDimensions {
		if _, ok := w[dim]; !ok {
			return errors.ErrInvalidConfig(fmt.Sprintf("no weight for dimension %s", dim))
		}
	}
	if math.Abs(sum-1.0) > constants.WeightSumTolerance {
		return errors.ErrInvalidConfig(fmt.Sprintf("weights sum to %g, expected 1.0", sum))
	}
	return nil
}

// AggregatorConfig holds the baseline weights and per-entity-type overrides.
type AggregatorConfig struct {
	Weights   Weights            `json:"weights" mapstructure:"weights"`
	Overrides map[string]Weights `json:"overrides" mapstructure:"overrides"`
}

// DefaultAggregatorConfig weights every dimension equally with no overrides.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{Weights: EqualWeights()}
}

type decimalWeights map[constants.Dimension]decimal.Decimal

func toDecimalWeights(w Weights) decimalWeights {
	d := make(decimalWeights, len(w))
	for dim, v := range w {
		d[dim] = decimal.NewFromFloat(v)
	}
	return d
}

// Aggregator combines dimension scores into an overall score and derives the trend.
// It is immutable after construction and safe for concurrent use.
type Aggregator struct {
	base      decimalWeights
	overrides map[string]decimalWeights
}

// Validate checks the baseline weights and every override.
func (c AggregatorConfig) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	for entityType, w := range c.Overrides {
		if err := w.Validate(); err != nil {
			riskErr, _ := errors.AsRiskError(err)
			return riskErr.WithMetadata("entity_type", entityType)
		}
	}
	return nil
}

// NewAggregator validates cfg and precomputes its decimal weights.
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Aggregator{
		base:      toDecimalWeights(cfg.Weights),
		overrides: make(map[string]decimalWeights, len(cfg.Overrides)),
	}
	for entityType, w := range cfg.Overrides {
		a.overrides[normalizeEntityType(entityType)] = toDecimalWeights(w)
	}
	return a, nil
}

// Aggregate computes the overall score of one entity and its trend against prior.
// A nil prior yields TrendFlat.
func (a *Aggregator) Aggregate(entityID, entityType string, scores map[constants.Dimension]int, prior *models.EntityRiskProfile) (int, constants.Trend, error) {
	weights := a.weightsFor(entityType)

	sum := decimal.Zero
	for _, dim := range constants.ScoredDimensions {
		s, ok := scores[dim]
		if !ok {
			return 0, "", errors.ErrMissingDimension(entityID, dim)
		}
		sum = sum.Add(decimal.NewFromInt(int64(clampScore(s))).Mul(weights[dim]))
	}

	overall := roundScore(sum)
	return overall, TrendOf(overall, prior), nil
}

func (a *Aggregator) weightsFor(entityType string) decimalWeights {
	if w, ok := a.overrides[normalizeEntityType(entityType)]; ok {
		return w
	}
	return a.base
}

// WeightsFor returns the weights applied to an entity type.
func (a *Aggregator) WeightsFor(entityType string) Weights {
	d := a.weightsFor(entityType)
	w := make(Weights, len(d))
	for dim, v := range d {
		w[dim] = v.InexactFloat64()
	}
	return w
}

// TrendOf compares an overall score with the prior profile's overall score.
func TrendOf(overall int, prior *models.EntityRiskProfile) constants.Trend {
	if prior == nil {
		return constants.TrendFlat
	}
	switch prev := prior.RiskScores.Overall(); {
	case overall > prev:
		return constants.TrendUp
	case overall < prev:
		return constants.TrendDown
	default:
		return constants.TrendFlat
	}
}

func normalizeEntityType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
