package service

import (
	"fmt"
	"strings"

	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
)

// Thresholds are the lower bounds of each score band, applied top-down with score >= threshold.
// Scores below Moderate classify as Low.
type Thresholds struct {
	Severe   int `json:"severe" mapstructure:"severe"`
	High     int `json:"high" mapstructure:"high"`
	Elevated int `json:"elevated" mapstructure:"elevated"`
	Moderate int `json:"moderate" mapstructure:"moderate"`
}

// DefaultThresholds returns the 90/75/60/40 band scaffold.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Severe:   constants.DefaultSevereThreshold,
		High:     constants.DefaultHighThreshold,
		Elevated: constants.DefaultElevatedThreshold,
		Moderate: constants.DefaultModerateThreshold,
	}
}

// Validate requires strictly increasing thresholds inside (0, 100].
func (t Thresholds) Validate() error {
	if t.Moderate <= constants.MinScore || t.Severe > constants.MaxScore {
		return errors.ErrInvalidConfig(fmt.Sprintf("band thresholds must lie in (%d, %d]", constants.MinScore, constants.MaxScore))
	}
	if !(t.Moderate < t.Elevated && t.Elevated < t.High && t.High < t.Severe) {
		return errors.ErrInvalidConfig(fmt.Sprintf(
			"band thresholds must be strictly increasing: moderate=%d elevated=%d high=%d severe=%d",
			t.Moderate, t.Elevated, t.High, t.Severe))
	}
	return nil
}

// Classifier maps numeric scores and severity labels onto one band vocabulary.
// It is pure and safe for concurrent use.
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier creates a Classifier with the given thresholds.
func NewClassifier(thresholds Thresholds) (*Classifier, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{thresholds: thresholds}, nil
}

// Thresholds returns the configured band thresholds.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// ClassifyScore returns the band of a score. Out-of-range scores are clamped first.
func (c *Classifier) ClassifyScore(score int) constants.Band {
	score = clampScore(score)
	switch {
	case score >= c.thresholds.Severe:
		return constants.BandSevere
	case score >= c.thresholds.High:
		return constants.BandHigh
	case score >= c.thresholds.Elevated:
		return constants.BandElevated
	case score >= c.thresholds.Moderate:
		return constants.BandModerate
	default:
		return constants.BandLow
	}
}

// ClassifySeverity maps a severity label to its band. Matching ignores case and
// surrounding whitespace; unrecognized labels classify as BandUnknown.
func (c *Classifier) ClassifySeverity(label string) constants.Band {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "critical":
		return constants.BandSevere
	case "high":
		return constants.BandHigh
	case "medium":
		return constants.BandElevated
	case "low":
		return constants.BandLow
	default:
		return constants.BandUnknown
	}
}

// LowerBound returns the smallest score that classifies into b, or -1 for BandUnknown.
func (c *Classifier) LowerBound(b constants.Band) int {
	switch b {
	case constants.BandSevere:
		return c.thresholds.Severe
	case constants.BandHigh:
		return c.thresholds.High
	case constants.BandElevated:
		return c.thresholds.Elevated
	case constants.BandModerate:
		return c.thresholds.Moderate
	case constants.BandLow:
		return constants.MinScore
	default:
		return -1
	}
}

// SeverityForBand collapses a band into the three alert severities.
func SeverityForBand(b constants.Band) constants.Severity {
	switch b {
	case constants.BandSevere, constants.BandHigh:
		return constants.SeverityHigh
	case constants.BandElevated, constants.BandModerate:
		return constants.SeverityMedium
	default:
		return constants.SeverityLow
	}
}

func clampScore(score int) int {
	if score < constants.MinScore {
		return constants.MinScore
	}
	if score > constants.MaxScore {
		return constants.MaxScore
	}
	return score
}
