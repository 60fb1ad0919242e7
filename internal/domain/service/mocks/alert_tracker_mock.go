package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/fincore-risk/internal/domain/service"
)

type MockAlertTracker struct {
	mock.Mock
}

func (m *MockAlertTracker) State(ctx context.Context, key service.TrackerKey) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockAlertTracker) Commit(ctx context.Context, changes service.TrackerChanges) error {
	args := m.Called(ctx, changes)
	return args.Error(0)
}

var _ service.AlertTracker = (*MockAlertTracker)(nil)
