package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/internal/domain/repository"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// alertDBM is the database model for the risk_alerts table.
type alertDBM struct {
	ID        string `gorm:"primaryKey;size:64"`
	EntityID  string `gorm:"size:128;index:idx_alerts_entity_date,priority:1"`
	Name      string
	Rule      string `gorm:"size:32"`
	Dimension string `gorm:"size:32"`
	Severity  string `gorm:"size:16"`
	Details   string
	Date      time.Time `gorm:"column:alerted_at;index;index:idx_alerts_entity_date,priority:2"`
}

func (alertDBM) TableName() string {
	return "risk_alerts"
}

func (dbm *alertDBM) toDomain() models.AlertEntry {
	return models.AlertEntry{
		ID:        dbm.ID,
		EntityID:  dbm.EntityID,
		Name:      dbm.Name,
		Rule:      constants.AlertRule(dbm.Rule),
		Dimension: constants.Dimension(dbm.Dimension),
		Severity:  constants.Severity(dbm.Severity),
		Details:   dbm.Details,
		Date:      dbm.Date.UTC(),
	}
}

func alertFromDomain(a models.AlertEntry) *alertDBM {
	return &alertDBM{
		ID:        a.ID,
		EntityID:  a.EntityID,
		Name:      a.Name,
		Rule:      string(a.Rule),
		Dimension: string(a.Dimension),
		Severity:  string(a.Severity),
		Details:   a.Details,
		Date:      a.Date.UTC(),
	}
}

// AlertRepository is a gorm implementation of repository.AlertRepository.
type AlertRepository struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *gorm.DB, log logger.Logger) repository.AlertRepository {
	return &AlertRepository{db: db, logger: log.WithComponent("AlertRepository")}
}

// AppendAlerts inserts the alerts, skipping ids that already exist.
func (r *AlertRepository) AppendAlerts(ctx context.Context, alerts []models.AlertEntry) error {
	if len(alerts) == 0 {
		return nil
	}
	rows := make([]*alertDBM, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, alertFromDomain(a))
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		CreateInBatches(rows, 200).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to append alerts", err, logger.Fields{"count": len(alerts)})
		return errors.WrapError(err, constants.ErrCodeServerError, "failed to append alerts")
	}
	return nil
}

// ListAlerts returns alerts newest first. A non-positive limit uses the default,
// and limits above the maximum are capped.
func (r *AlertRepository) ListAlerts(ctx context.Context, entityID string, limit int) ([]models.AlertEntry, error) {
	switch {
	case limit <= 0:
		limit = constants.DefaultAlertListLimit
	case limit > constants.MaxAlertListLimit:
		limit = constants.MaxAlertListLimit
	}

	query := r.db.WithContext(ctx).Model(&alertDBM{})
	if entityID != "" {
		query = query.Where("entity_id = ?", entityID)
	}

	var rows []alertDBM
	if err := query.Order("alerted_at DESC").Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeServerError, "failed to list alerts")
	}

	alerts := make([]models.AlertEntry, 0, len(rows))
	for i := range rows {
		alerts = append(alerts, rows[i].toDomain())
	}
	return alerts, nil
}
