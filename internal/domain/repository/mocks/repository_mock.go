package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/internal/domain/repository"
)

type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockSnapshotRepository) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	args := m.Called(ctx)
	var snap *models.Snapshot
	if v := args.Get(0); v != nil {
		snap = v.(*models.Snapshot)
	}
	return snap, args.Error(1)
}

func (m *MockSnapshotRepository) GetProfile(ctx context.Context, entityID string) (*models.EntityRiskProfile, error) {
	args := m.Called(ctx, entityID)
	var profile *models.EntityRiskProfile
	if v := args.Get(0); v != nil {
		profile = v.(*models.EntityRiskProfile)
	}
	return profile, args.Error(1)
}

type MockAlertRepository struct {
	mock.Mock
}

func (m *MockAlertRepository) AppendAlerts(ctx context.Context, alerts []models.AlertEntry) error {
	args := m.Called(ctx, alerts)
	return args.Error(0)
}

func (m *MockAlertRepository) ListAlerts(ctx context.Context, entityID string, limit int) ([]models.AlertEntry, error) {
	args := m.Called(ctx, entityID, limit)
	var alerts []models.AlertEntry
	if v := args.Get(0); v != nil {
		alerts = v.([]models.AlertEntry)
	}
	return alerts, args.Error(1)
}

var (
	_ repository.SnapshotRepository = (*MockSnapshotRepository)(nil)
	_ repository.AlertRepository    = (*MockAlertRepository)(nil)
)
