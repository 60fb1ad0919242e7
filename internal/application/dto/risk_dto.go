package dto

import (
	"time"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/constants"
)

// RunPassRequest is the body of POST /risk/passes. An empty body runs the pass
// against the configured data source.
type RunPassRequest struct {
	Entities []models.EntityRecord  `json:"entities"`
	Licenses []models.LicenseRecord `json:"licenses" validate:"dive"`
}

// HasRecords reports whether the request carries inline records.
func (r *RunPassRequest) HasRecords() bool {
	return r != nil && (len(r.Entities) > 0 || len(r.Licenses) > 0)
}

// PassResponse is the outcome of one pass.
type PassResponse struct {
	SnapshotID string                       `json:"snapshot_id"`
	TakenAt    time.Time                    `json:"taken_at"`
	Profiles   []models.EntityRiskProfile   `json:"profiles"`
	Alerts     []models.AlertEntry          `json:"alerts"`
	Excluded   []models.EntityDiagnostic    `json:"excluded"`
	Degraded   []models.DimensionDiagnostic `json:"degraded"`
}

// NewPassResponse flattens an engine result.
func NewPassResponse(r *service.Result) *PassResponse {
	return &PassResponse{
		SnapshotID: r.Snapshot.ID,
		TakenAt:    r.Snapshot.TakenAt,
		Profiles:   r.Snapshot.Profiles,
		Alerts:     r.Alerts,
		Excluded:   r.Excluded,
		Degraded:   r.Degraded,
	}
}

// ProfileListResponse is the body of GET /risk/entities.
type ProfileListResponse struct {
	SnapshotID string                     `json:"snapshot_id,omitempty"`
	TakenAt    *time.Time                 `json:"taken_at,omitempty"`
	Profiles   []models.EntityRiskProfile `json:"profiles"`
	Count      int                        `json:"count"`
}

// AlertListRequest holds the query of GET /alerts.
type AlertListRequest struct {
	EntityID string `form:"entity_id" json:"entity_id" validate:"omitempty,max=128"`
	Limit    int    `form:"limit" json:"limit" validate:"gte=0,lte=1000"`
}

// AlertListResponse is the body of GET /alerts.
type AlertListResponse struct {
	Alerts []models.AlertEntry `json:"alerts"`
	Count  int                 `json:"count"`
}

// ClassifyRequest is the body of POST /classify. Exactly one of Score and
// Severity must be set.
type ClassifyRequest struct {
	Score    *int    `json:"score,omitempty"`
	Severity *string `json:"severity,omitempty"`
}

// ClassifyResponse carries the resulting band.
type ClassifyResponse struct {
	Band       constants.Band `json:"band"`
	LowerBound int            `json:"lower_bound"`
}
