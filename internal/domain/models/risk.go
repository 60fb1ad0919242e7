package models

import (
	"time"

	"github.com/turtacn/fincore-risk/pkg/constants"
)

// Indicators holds named raw indicator values for one dimension, e.g. "npl_ratio": 0.04.
type Indicators map[string]float64

// EntityRecord is one entity as supplied by the external data source.
type EntityRecord struct {
	EntityID    string `json:"entity_id" yaml:"entity_id"`
	CompanyName string `json:"company_name" yaml:"company_name"`
	Type        string `json:"type" yaml:"type"`

	// Indicators carries raw inputs per dimension, normalized by the engine.
	Indicators map[constants.Dimension]Indicators `json:"indicators,omitempty" yaml:"indicators,omitempty"`

	// Scores carries already normalized sub-scores. A dimension present here
	// bypasses indicator normalization and is only clamped to [0, 100].
	Scores map[constants.Dimension]float64 `json:"scores,omitempty" yaml:"scores,omitempty"`
}

// LicenseRecord is one regulatory license held by an entity.
type LicenseRecord struct {
	LicenseID string                  `json:"license_id" yaml:"license_id" validate:"required"`
	EntityID  string                  `json:"entity_id" yaml:"entity_id" validate:"required"`
	Kind      string                  `json:"kind" yaml:"kind"`
	Status    constants.LicenseStatus `json:"status" yaml:"status" validate:"required,oneof=active suspended revoked expired"`
	ExpiresAt *time.Time              `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// IsExpiredAt reports whether the license is expired at t, either by status or by date.
func (l LicenseRecord) IsExpiredAt(t time.Time) bool {
	if l.Status == constants.LicenseStatusExpired {
		return true
	}
	return l.ExpiresAt != nil && l.ExpiresAt.Before(t)
}

// RiskScores maps each dimension, including overall, to an integer score in [0, 100].
type RiskScores map[constants.Dimension]int

// Overall returns the aggregated score.
func (s RiskScores) Overall() int {
	return s[constants.DimensionOverall]
}

// EntityRiskProfile is the computed risk state of one entity within a snapshot.
// Profiles are never mutated after a pass returns them.
type EntityRiskProfile struct {
	EntityID    string          `json:"entity_id"`
	CompanyName string          `json:"company_name"`
	Type        string          `json:"type"`
	RiskScores  RiskScores      `json:"risk_scores"`
	Trend       constants.Trend `json:"trend"`
	Band        constants.Band  `json:"band"`
}

// Snapshot is one complete computed result set for all entities at a point in time.
type Snapshot struct {
	ID       string              `json:"id"`
	TakenAt  time.Time           `json:"taken_at"`
	Profiles []EntityRiskProfile `json:"profiles"`

	index map[string]int
}

// NewSnapshot builds a snapshot and its entity index.
func NewSnapshot(id string, takenAt time.Time, profiles []EntityRiskProfile) *Snapshot {
	index := make(map[string]int, len(profiles))
	for i, p := range profiles {
		index[p.EntityID] = i
	}
	return &Snapshot{ID: id, TakenAt: takenAt, Profiles: profiles, index: index}
}

// Profile looks up the profile of an entity. A nil snapshot holds no profiles.
// Snapshots decoded from JSON carry no index and fall back to a scan.
func (s *Snapshot) Profile(entityID string) (EntityRiskProfile, bool) {
	if s == nil {
		return EntityRiskProfile{}, false
	}
	if s.index != nil {
		i, ok := s.index[entityID]
		if !ok {
			return EntityRiskProfile{}, false
		}
		return s.Profiles[i], true
	}
	for _, p := range s.Profiles {
		if p.EntityID == entityID {
			return p, true
		}
	}
	return EntityRiskProfile{}, false
}

// AlertEntry is one item of the alert timeline.
type AlertEntry struct {
	ID        string              `json:"id"`
	EntityID  string              `json:"entity_id"`
	Name      string              `json:"name"`
	Rule      constants.AlertRule `json:"rule"`
	Dimension constants.Dimension `json:"dimension,omitempty"`
	Severity  constants.Severity  `json:"severity"`
	Details   string              `json:"details"`
	Date      time.Time           `json:"date"`
}

// EntityDiagnostic explains why an entity was excluded from a pass.
type EntityDiagnostic struct {
	EntityID string              `json:"entity_id"`
	Code     constants.ErrorCode `json:"code"`
	Message  string              `json:"message"`
}

// DimensionDiagnostic explains why a dimension fell back to its default score.
type DimensionDiagnostic struct {
	EntityID      string              `json:"entity_id"`
	Dimension     constants.Dimension `json:"dimension"`
	FallbackScore int                 `json:"fallback_score"`
	Message       string              `json:"message"`
}
