package service

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
)

// IndicatorRule maps one raw indicator linearly onto the 0-100 risk scale.
// A value at LowRiskAt scores 0 and a value at HighRiskAt scores 100; values beyond
// either end are clamped. Inverse indicators (higher is safer) set LowRiskAt > HighRiskAt.
type IndicatorRule struct {
	Name       string  `json:"name" mapstructure:"name"`
	ValidMin   float64 `json:"valid_min" mapstructure:"valid_min"`
	ValidMax   float64 `json:"valid_max" mapstructure:"valid_max"`
	LowRiskAt  float64 `json:"low_risk_at" mapstructure:"low_risk_at"`
	HighRiskAt float64 `json:"high_risk_at" mapstructure:"high_risk_at"`
	Weight     float64 `json:"weight" mapstructure:"weight"`
}

// risk returns the unrounded 0-100 risk contribution of v.
func (r IndicatorRule) risk(v float64) float64 {
	risk := (v - r.LowRiskAt) / (r.HighRiskAt - r.LowRiskAt) * constants.MaxScore
	return math.Max(constants.MinScore, math.Min(constants.MaxScore, risk))
}

// NormalizationTable holds the indicator rules of every dimension.
type NormalizationTable map[constants.Dimension][]IndicatorRule

// DefaultNormalizationTable returns the documented default indicator mapping.
func DefaultNormalizationTable() NormalizationTable {
	return NormalizationTable{
		constants.DimensionCredit: {
			{Name: "npl_ratio", ValidMin: 0, ValidMax: 1, LowRiskAt: 0.01, HighRiskAt: 0.15, Weight: 0.6},
			{Name: "provision_coverage", ValidMin: 0, ValidMax: 10, LowRiskAt: 1.5, HighRiskAt: 0.3, Weight: 0.4},
		},
		constants.DimensionLiquidity: {
			{Name: "liquidity_coverage_ratio", ValidMin: 0, ValidMax: 20, LowRiskAt: 1.5, HighRiskAt: 0.8, Weight: 0.6},
			{Name: "loan_to_deposit", ValidMin: 0, ValidMax: 5, LowRiskAt: 0.7, HighRiskAt: 1.2, Weight: 0.4},
		},
		constants.DimensionMarket: {
			{Name: "var_to_capital", ValidMin: 0, ValidMax: 1, LowRiskAt: 0.01, HighRiskAt: 0.2, Weight: 0.5},
			{Name: "fx_exposure", ValidMin: 0, ValidMax: 1, LowRiskAt: 0.05, HighRiskAt: 0.5, Weight: 0.5},
		},
		constants.DimensionOperational: {
			{Name: "incident_count", ValidMin: 0, ValidMax: 1e6, LowRiskAt: 0, HighRiskAt: 50, Weight: 0.5},
			{Name: "compliance_breaches", ValidMin: 0, ValidMax: 1e6, LowRiskAt: 0, HighRiskAt: 10, Weight: 0.5},
		},
		constants.DimensionCapitalAdequacy: {
			{Name: "capital_adequacy_ratio", ValidMin: 0, ValidMax: 1, LowRiskAt: 0.15, HighRiskAt: 0.08, Weight: 0.6},
			{Name: "leverage_ratio", ValidMin: 0, ValidMax: 100, LowRiskAt: 10, HighRiskAt: 30, Weight: 0.4},
		},
	}
}

// Validate checks that every scored dimension has usable rules.
func (t NormalizationTable) Validate() error {
	for _, dim := range constants.ScoredDimensions {
		rules, ok := t[dim]
		if !ok || len(rules) == 0 {
			return errors.ErrInvalidConfig(fmt.Sprintf("no indicator rules for dimension %s", dim))
		}
		seen := make(map[string]bool, len(rules))
		for _, r := range rules {
			switch {
			case r.Name == "":
				return errors.ErrInvalidConfig(fmt.Sprintf("unnamed indicator rule in dimension %s", dim))
			case seen[r.Name]:
				return errors.ErrInvalidConfig(fmt.Sprintf("duplicate indicator %s/%s", dim, r.Name))
			case r.ValidMin > r.ValidMax:
				return errors.ErrInvalidConfig(fmt.Sprintf("indicator %s/%s has valid_min > valid_max", dim, r.Name))
			case r.LowRiskAt == r.HighRiskAt:
				return errors.ErrInvalidConfig(fmt.Sprintf("indicator %s/%s has equal low and high risk anchors", dim, r.Name))
			case r.Weight <= 0:
				return errors.ErrInvalidConfig(fmt.Sprintf("indicator %s/%s must have a positive weight", dim, r.Name))
			}
			seen[r.Name] = true
		}
	}
	return nil
}

// Normalizer converts raw indicators into bounded sub-scores where higher always means riskier.
type Normalizer struct {
	table NormalizationTable
}

// NewNormalizer creates a Normalizer over a validated table.
func NewNormalizer(table NormalizationTable) (*Normalizer, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{table: table}, nil
}

// Normalize scores one dimension from its raw indicators. Every indicator named in the
// table is required; a missing, non-finite or out-of-range value fails with InvalidIndicator.
// Extra indicators the table does not know are ignored.
func (n *Normalizer) Normalize(dimension constants.Dimension, indicators models.Indicators) (int, error) {
	rules, ok := n.table[dimension]
	if !ok {
		return 0, errors.ErrInvalidIndicator(dimension, "*", "dimension has no normalization rules")
	}
	if len(indicators) == 0 {
		return 0, errors.ErrInvalidIndicator(dimension, "*", "no indicators supplied")
	}

	weighted := decimal.Zero
	totalWeight := decimal.Zero
	for _, rule := range rules {
		v, ok := indicators[rule.Name]
		if !ok {
			return 0, errors.ErrInvalidIndicator(dimension, rule.Name, "missing")
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, errors.ErrInvalidIndicator(dimension, rule.Name, "not a finite number")
		}
		if v < rule.ValidMin || v > rule.ValidMax {
			return 0, errors.ErrInvalidIndicator(dimension, rule.Name,
				fmt.Sprintf("%g outside [%g, %g]", v, rule.ValidMin, rule.ValidMax))
		}
		w := decimal.NewFromFloat(rule.Weight)
		weighted = weighted.Add(decimal.NewFromFloat(rule.risk(v)).Mul(w))
		totalWeight = totalWeight.Add(w)
	}

	return roundScore(weighted.Div(totalWeight)), nil
}

// NormalizeScore accepts an already normalized sub-score and clamps it to [0, 100].
func (n *Normalizer) NormalizeScore(dimension constants.Dimension, raw float64) (int, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, errors.ErrInvalidIndicator(dimension, "score", "not a finite number")
	}
	return roundScore(decimal.NewFromFloat(raw)), nil
}

// ApplyLicensePenalty raises an operational score for every non-active license at time at.
// The result is clamped to 100 and never lower than score.
func ApplyLicensePenalty(score int, licenses []models.LicenseRecord, at time.Time) int {
	for _, l := range licenses {
		switch {
		case l.Status == constants.LicenseStatusRevoked:
			score += constants.LicensePenaltyRevoked
		case l.Status == constants.LicenseStatusSuspended:
			score += constants.LicensePenaltySuspended
		case l.IsExpiredAt(at):
			score += constants.LicensePenaltyExpired
		}
	}
	return clampScore(score)
}

// roundScore rounds half away from zero and clamps to [0, 100]. For the
// non-negative scores the engine produces this is round-half-up.
func roundScore(d decimal.Decimal) int {
	if d.LessThan(decimal.NewFromInt(constants.MinScore)) {
		return constants.MinScore
	}
	if d.GreaterThan(decimal.NewFromInt(constants.MaxScore)) {
		return constants.MaxScore
	}
	return clampScore(int(d.Round(0).IntPart()))
}
