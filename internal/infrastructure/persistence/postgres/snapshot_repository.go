package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/internal/domain/repository"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// snapshotDBM is the database model for the risk_snapshots table.
type snapshotDBM struct {
	ID      string    `gorm:"primaryKey;size:64"`
	TakenAt time.Time `gorm:"index;not null"`
}

func (snapshotDBM) TableName() string {
	return "risk_snapshots"
}

// profileDBM is the database model for the risk_profiles table. One row per entity
// per snapshot; Position keeps the input order of the pass.
type profileDBM struct {
	SnapshotID      string `gorm:"primaryKey;size:64"`
	EntityID        string `gorm:"primaryKey;size:128;index"`
	Position        int    `gorm:"column:seq;not null"`
	CompanyName     string
	Type            string `gorm:"size:64"`
	Overall         int
	Credit          int
	Liquidity       int
	Market          int
	Operational     int
	CapitalAdequacy int
	Trend           string `gorm:"size:8"`
	Band            string `gorm:"size:16"`
}

func (profileDBM) TableName() string {
	return "risk_profiles"
}

// toDomain converts the database model to a domain model.
func (dbm *profileDBM) toDomain() models.EntityRiskProfile {
	var band constants.Band
	_ = band.UnmarshalText([]byte(dbm.Band))
	return models.EntityRiskProfile{
		EntityID:    dbm.EntityID,
		CompanyName: dbm.CompanyName,
		Type:        dbm.Type,
		RiskScores: models.RiskScores{
			constants.DimensionOverall:         dbm.Overall,
			constants.DimensionCredit:          dbm.Credit,
			constants.DimensionLiquidity:       dbm.Liquidity,
			constants.DimensionMarket:          dbm.Market,
			constants.DimensionOperational:     dbm.Operational,
			constants.DimensionCapitalAdequacy: dbm.CapitalAdequacy,
		},
		Trend: constants.Trend(dbm.Trend),
		Band:  band,
	}
}

// profileFromDomain converts a domain model to a database model.
func profileFromDomain(snapshotID string, position int, p models.EntityRiskProfile) *profileDBM {
	return &profileDBM{
		SnapshotID:      snapshotID,
		EntityID:        p.EntityID,
		Position:        position,
		CompanyName:     p.CompanyName,
		Type:            p.Type,
		Overall:         p.RiskScores[constants.DimensionOverall],
		Credit:          p.RiskScores[constants.DimensionCredit],
		Liquidity:       p.RiskScores[constants.DimensionLiquidity],
		Market:          p.RiskScores[constants.DimensionMarket],
		Operational:     p.RiskScores[constants.DimensionOperational],
		CapitalAdequacy: p.RiskScores[constants.DimensionCapitalAdequacy],
		Trend:           string(p.Trend),
		Band:            p.Band.String(),
	}
}

// SnapshotRepository is a gorm implementation of repository.SnapshotRepository.
type SnapshotRepository struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db *gorm.DB, log logger.Logger) repository.SnapshotRepository {
	return &SnapshotRepository{db: db, logger: log.WithComponent("SnapshotRepository")}
}

// SaveSnapshot writes the snapshot and all its profiles in one transaction.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	startTime := time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&snapshotDBM{ID: snapshot.ID, TakenAt: snapshot.TakenAt.UTC()}).Error; err != nil {
			return err
		}
		if len(snapshot.Profiles) == 0 {
			return nil
		}
		rows := make([]*profileDBM, 0, len(snapshot.Profiles))
		for i, p := range snapshot.Profiles {
			rows = append(rows, profileFromDomain(snapshot.ID, i, p))
		}
		return tx.CreateInBatches(rows, 200).Error
	})
	if err != nil {
		r.logger.Error(ctx, "Failed to save snapshot", err, logger.Fields{"snapshot_id": snapshot.ID})
		return errors.WrapError(err, constants.ErrCodeServerError, "failed to save snapshot")
	}

	r.logger.Debug(ctx, "Snapshot saved", logger.Fields{
		"snapshot_id": snapshot.ID,
		"profiles":    len(snapshot.Profiles),
		"latency_ms":  time.Since(startTime).Milliseconds(),
	})
	return nil
}

// LatestSnapshot returns the most recent snapshot, or (nil, nil) when none exists.
func (r *SnapshotRepository) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	var head snapshotDBM
	err := r.db.WithContext(ctx).Order("taken_at DESC").Order("id DESC").First(&head).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.WrapError(err, constants.ErrCodeServerError, "failed to load latest snapshot")
	}

	var rows []profileDBM
	if err := r.db.WithContext(ctx).Where("snapshot_id = ?", head.ID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeServerError, "failed to load snapshot profiles")
	}

	profiles := make([]models.EntityRiskProfile, 0, len(rows))
	for i := range rows {
		profiles = append(profiles, rows[i].toDomain())
	}
	return models.NewSnapshot(head.ID, head.TakenAt.UTC(), profiles), nil
}

// GetProfile returns the profile of entityID in the latest snapshot.
func (r *SnapshotRepository) GetProfile(ctx context.Context, entityID string) (*models.EntityRiskProfile, error) {
	latest := r.db.Model(&snapshotDBM{}).Select("id").Order("taken_at DESC").Order("id DESC").Limit(1)

	var row profileDBM
	err := r.db.WithContext(ctx).
		Where("snapshot_id = (?) AND entity_id = ?", latest, entityID).
		First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound("entity risk profile", entityID)
		}
		r.logger.Error(ctx, "Failed to load profile", err, logger.Fields{"entity_id": entityID})
		return nil, errors.WrapError(err, constants.ErrCodeServerError, "failed to load profile")
	}

	profile := row.toDomain()
	return &profile, nil
}
