package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/internal/domain/service"
)

type MockAlertPublisher struct {
	mock.Mock
}

func (m *MockAlertPublisher) Publish(ctx context.Context, alerts []models.AlertEntry) error {
	args := m.Called(ctx, alerts)
	return args.Error(0)
}

func (m *MockAlertPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) Fetch(ctx context.Context) ([]models.EntityRecord, []models.LicenseRecord, error) {
	args := m.Called(ctx)
	var entities []models.EntityRecord
	if v := args.Get(0); v != nil {
		entities = v.([]models.EntityRecord)
	}
	var licenses []models.LicenseRecord
	if v := args.Get(1); v != nil {
		licenses = v.([]models.LicenseRecord)
	}
	return entities, licenses, args.Error(2)
}

var (
	_ service.AlertPublisher = (*MockAlertPublisher)(nil)
	_ service.DataSource     = (*MockDataSource)(nil)
)
