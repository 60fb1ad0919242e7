package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/constants"
)

type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordPass(outcome string, entities int, duration time.Duration) {
	m.Called(outcome, entities, duration)
}

func (m *MockMetrics) RecordProfile(entityType string, band constants.Band) {
	m.Called(entityType, band)
}

func (m *MockMetrics) RecordFallback(dimension constants.Dimension) {
	m.Called(dimension)
}

func (m *MockMetrics) RecordExclusion(code constants.ErrorCode) {
	m.Called(code)
}

func (m *MockMetrics) RecordAlert(rule constants.AlertRule, severity constants.Severity) {
	m.Called(rule, severity)
}

func (m *MockMetrics) RecordCacheAccess(cacheType string, hit bool) {
	m.Called(cacheType, hit)
}

func (m *MockMetrics) RecordPublish(success bool, count int) {
	m.Called(success, count)
}

var _ service.Metrics = (*MockMetrics)(nil)
