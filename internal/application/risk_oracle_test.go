package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	repomocks "github.com/turtacn/fincore-risk/internal/domain/repository/mocks"
	servicemocks "github.com/turtacn/fincore-risk/internal/domain/service/mocks"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

func TestRiskOracle_GetEntityRiskCaches(t *testing.T) {
	ctx := context.Background()
	snapshots := new(repomocks.MockSnapshotRepository)
	metrics := new(servicemocks.MockMetrics)
	oracle := NewRiskOracle(snapshots, new(repomocks.MockAlertRepository), time.Minute, time.Minute, metrics, logger.NewNoopLogger())

	profile := uniformSnapshot("E1", 80).Profiles[0]
	snapshots.On("GetProfile", mock.Anything, "E1").Return(&profile, nil).Twice()
	metrics.On("RecordCacheAccess", "profile", false).Twice()
	metrics.On("RecordCacheAccess", "profile", true).Once()

	got, err := oracle.GetEntityRisk(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 80, got.RiskScores.Overall())

	_, err = oracle.GetEntityRisk(ctx, "E1")
	require.NoError(t, err)

	oracle.Invalidate()
	_, err = oracle.GetEntityRisk(ctx, "E1")
	require.NoError(t, err)

	snapshots.AssertExpectations(t)
	metrics.AssertExpectations(t)
}

func TestRiskOracle_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	snapshots := new(repomocks.MockSnapshotRepository)
	oracle := NewRiskOracle(snapshots, new(repomocks.MockAlertRepository), 0, 0, nil, logger.NewNoopLogger())

	snapshots.On("GetProfile", mock.Anything, "nope").Return(nil, errors.ErrNotFound("entity risk profile", "nope")).Twice()

	for i := 0; i < 2; i++ {
		_, err := oracle.GetEntityRisk(ctx, "nope")
		assert.True(t, errors.IsCode(err, constants.ErrCodeNotFound))
	}
	snapshots.AssertExpectations(t)
}

func TestRiskOracle_LatestProfiles(t *testing.T) {
	ctx := context.Background()
	snapshots := new(repomocks.MockSnapshotRepository)
	oracle := NewRiskOracle(snapshots, new(repomocks.MockAlertRepository), 0, 0, nil, logger.NewNoopLogger())

	// Before the first pass nothing is cached.
	snapshots.On("LatestSnapshot", mock.Anything).Return(nil, nil).Twice()
	for i := 0; i < 2; i++ {
		snap, err := oracle.LatestProfiles(ctx)
		require.NoError(t, err)
		assert.Nil(t, snap)
	}

	snapshots.ExpectedCalls = nil
	snapshots.On("LatestSnapshot", mock.Anything).Return(uniformSnapshot("E1", 40), nil).Once()
	for i := 0; i < 3; i++ {
		snap, err := oracle.LatestProfiles(ctx)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Len(t, snap.Profiles, 1)
	}
	snapshots.AssertExpectations(t)
}

func TestRiskOracle_ListAlerts(t *testing.T) {
	alerts := new(repomocks.MockAlertRepository)
	oracle := NewRiskOracle(new(repomocks.MockSnapshotRepository), alerts, 0, 0, nil, logger.NewNoopLogger())

	entries := []models.AlertEntry{{ID: "a1", EntityID: "E1"}}
	alerts.On("ListAlerts", mock.Anything, "E1", 5).Return(entries, nil).Once()

	got, err := oracle.ListAlerts(context.Background(), "E1", 5)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

type slowSnapshots struct {
	repomocks.MockSnapshotRepository
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowSnapshots) GetProfile(_ context.Context, entityID string) (*models.EntityRiskProfile, error) {
	s.calls.Add(1)
	<-s.release
	p := uniformSnapshot(entityID, 10).Profiles[0]
	return &p, nil
}

func TestRiskOracle_CoalescesConcurrentMisses(t *testing.T) {
	repo := &slowSnapshots{release: make(chan struct{})}
	oracle := NewRiskOracle(repo, new(repomocks.MockAlertRepository), 0, 0, nil, logger.NewNoopLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := oracle.GetEntityRisk(context.Background(), "E1")
			assert.NoError(t, err)
			assert.Equal(t, "E1", p.EntityID)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(repo.release)
	wg.Wait()

	assert.Equal(t, int32(1), repo.calls.Load())
}
