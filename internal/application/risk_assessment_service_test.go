package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	repomocks "github.com/turtacn/fincore-risk/internal/domain/repository/mocks"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	servicemocks "github.com/turtacn/fincore-risk/internal/domain/service/mocks"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

type countingCache struct{ n atomic.Int32 }

func (c *countingCache) Invalidate() { c.n.Add(1) }

func uniformEntity(id string, score float64) models.EntityRecord {
	scores := make(map[constants.Dimension]float64, len(constants.ScoredDimensions))
	for _, dim := range constants.ScoredDimensions {
		scores[dim] = score
	}
	return models.EntityRecord{EntityID: id, CompanyName: "Company " + id, Type: "bank", Scores: scores}
}

func uniformSnapshot(id string, overall int) *models.Snapshot {
	scores := models.RiskScores{constants.DimensionOverall: overall}
	for _, dim := range constants.ScoredDimensions {
		scores[dim] = overall
	}
	return models.NewSnapshot("prior", time.Now().Add(-time.Hour), []models.EntityRiskProfile{{
		EntityID: id, CompanyName: "Company " + id, Type: "bank", RiskScores: scores,
	}})
}

type assessmentFixture struct {
	snapshots *repomocks.MockSnapshotRepository
	alerts    *repomocks.MockAlertRepository
	publisher *servicemocks.MockAlertPublisher
	cache     *countingCache
	svc       RiskAssessmentService
}

func newAssessmentFixture(t *testing.T, metrics service.Metrics) *assessmentFixture {
	t.Helper()
	f := &assessmentFixture{
		snapshots: new(repomocks.MockSnapshotRepository),
		alerts:    new(repomocks.MockAlertRepository),
		publisher: new(servicemocks.MockAlertPublisher),
		cache:     &countingCache{},
	}
	svc, err := NewRiskAssessmentService(service.DefaultEngineConfig(), RiskAssessmentDeps{
		Snapshots: f.snapshots,
		Alerts:    f.alerts,
		Publisher: f.publisher,
		Cache:     f.cache,
		Metrics:   metrics,
	}, logger.NewNoopLogger())
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestRunPass_FirstPass(t *testing.T) {
	ctx := context.Background()
	f := newAssessmentFixture(t, nil)

	f.snapshots.On("LatestSnapshot", mock.Anything).Return(nil, nil).Once()
	f.snapshots.On("SaveSnapshot", mock.Anything, mock.AnythingOfType("*models.Snapshot")).Return(nil).Once()
	f.alerts.On("AppendAlerts", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := f.svc.RunPass(ctx, []models.EntityRecord{uniformEntity("E1", 75)}, nil)
	require.NoError(t, err)
	require.Len(t, result.Snapshot.Profiles, 1)
	assert.Equal(t, 75, result.Snapshot.Profiles[0].RiskScores.Overall())
	assert.Equal(t, constants.TrendFlat, result.Snapshot.Profiles[0].Trend)
	assert.Empty(t, result.Alerts)
	assert.Equal(t, int32(1), f.cache.n.Load())

	f.snapshots.AssertExpectations(t)
	f.alerts.AssertExpectations(t)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestRunPass_PublishesAlerts(t *testing.T) {
	ctx := context.Background()
	metrics := new(servicemocks.MockMetrics)
	metrics.On("RecordPass", mock.Anything, mock.Anything, mock.Anything).Maybe()
	metrics.On("RecordProfile", mock.Anything, mock.Anything).Maybe()
	metrics.On("RecordAlert", mock.Anything, mock.Anything).Maybe()
	metrics.On("RecordPublish", false, 6).Once()
	f := newAssessmentFixture(t, metrics)

	f.snapshots.On("LatestSnapshot", mock.Anything).Return(uniformSnapshot("E1", 70), nil)
	f.snapshots.On("SaveSnapshot", mock.Anything, mock.Anything).Return(nil)
	f.alerts.On("AppendAlerts", mock.Anything, mock.MatchedBy(func(a []models.AlertEntry) bool { return len(a) == 6 })).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(stderrors.New("broker down")).Once()

	result, err := f.svc.RunPass(ctx, []models.EntityRecord{uniformEntity("E1", 95)}, nil)
	require.NoError(t, err, "a delivery failure does not fail the pass")
	require.Len(t, result.Alerts, 6)
	assert.Equal(t, constants.AlertRuleBandCrossing, result.Alerts[0].Rule)
	assert.Equal(t, constants.TrendUp, result.Snapshot.Profiles[0].Trend)

	metrics.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func TestRunPass_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	f := newAssessmentFixture(t, nil)

	f.snapshots.On("LatestSnapshot", mock.Anything).Return(nil, nil)
	f.snapshots.On("SaveSnapshot", mock.Anything, mock.Anything).Return(errors.ErrServerError("disk full"))

	_, err := f.svc.RunPass(ctx, []models.EntityRecord{uniformEntity("E1", 50)}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, constants.ErrCodeServerError))
	assert.Equal(t, int32(0), f.cache.n.Load())
	f.alerts.AssertNotCalled(t, "AppendAlerts", mock.Anything, mock.Anything)
}

func TestRunPass_RetryAfterAlertStoreFailureRaisesAlerts(t *testing.T) {
	ctx := context.Background()
	f := newAssessmentFixture(t, nil)

	f.snapshots.On("LatestSnapshot", mock.Anything).Return(uniformSnapshot("E1", 70), nil)
	f.snapshots.On("SaveSnapshot", mock.Anything, mock.Anything).Return(nil)
	f.alerts.On("AppendAlerts", mock.Anything, mock.Anything).Return(errors.ErrServerError("timeline unavailable")).Once()
	f.alerts.On("AppendAlerts", mock.Anything, mock.Anything).Return(nil).Once()
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	entities := []models.EntityRecord{uniformEntity("E1", 95)}
	_, err := f.svc.RunPass(ctx, entities, nil)
	require.Error(t, err)

	retry, err := f.svc.RunPass(ctx, entities, nil)
	require.NoError(t, err)
	require.Len(t, retry.Alerts, 6)
	assert.Equal(t, constants.AlertRuleBandCrossing, retry.Alerts[0].Rule)

	f.alerts.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func TestRunPass_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	snapshots := new(repomocks.MockSnapshotRepository)
	alerts := new(repomocks.MockAlertRepository)
	snapshots.On("LatestSnapshot", mock.Anything).Return(nil, nil)
	snapshots.On("SaveSnapshot", mock.Anything, mock.Anything).Return(nil)
	alerts.On("AppendAlerts", mock.Anything, mock.Anything).Return(nil)

	svc, err := NewRiskAssessmentService(service.DefaultEngineConfig(), RiskAssessmentDeps{
		Snapshots: snapshots,
		Alerts:    alerts,
		Tracer:    provider.Tracer("test"),
	}, logger.NewNoopLogger())
	require.NoError(t, err)

	result, err := svc.RunPass(context.Background(), []models.EntityRecord{uniformEntity("E1", 50), uniformEntity("E2", 60)}, nil)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "RiskAssessmentService.RunPass", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Int("pass.entities", 2))
	assert.Contains(t, spans[0].Attributes(), attribute.String("snapshot.id", result.Snapshot.ID))
}

func TestRunPass_InvalidInputSkipsPersistence(t *testing.T) {
	f := newAssessmentFixture(t, nil)
	f.snapshots.On("LatestSnapshot", mock.Anything).Return(nil, nil)

	_, err := f.svc.RunPass(context.Background(), []models.EntityRecord{uniformEntity("E1", 50), uniformEntity("E1", 60)}, nil)
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidEntityRecord))
	f.snapshots.AssertNotCalled(t, "SaveSnapshot", mock.Anything, mock.Anything)
}

func TestRunFromSource(t *testing.T) {
	f := newAssessmentFixture(t, nil)
	_, err := f.svc.RunFromSource(context.Background())
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest))

	source := new(servicemocks.MockDataSource)
	source.On("Fetch", mock.Anything).Return(nil, nil, errors.ErrServerError("unreadable")).Once()
	svc, err := NewRiskAssessmentService(service.DefaultEngineConfig(), RiskAssessmentDeps{
		Snapshots: f.snapshots,
		Alerts:    f.alerts,
		Source:    source,
	}, logger.NewNoopLogger())
	require.NoError(t, err)

	_, err = svc.RunFromSource(context.Background())
	assert.True(t, errors.IsCode(err, constants.ErrCodeServerError))
	source.AssertExpectations(t)
}

func TestReloadEngine(t *testing.T) {
	f := newAssessmentFixture(t, nil)
	assert.Equal(t, constants.BandHigh, f.svc.Classifier().ClassifyScore(80))

	bad := service.DefaultEngineConfig()
	bad.Workers = 0
	require.Error(t, f.svc.ReloadEngine(bad))
	assert.Equal(t, constants.BandHigh, f.svc.Classifier().ClassifyScore(80))

	strict := service.DefaultEngineConfig()
	strict.Thresholds = service.Thresholds{Severe: 80, High: 70, Elevated: 50, Moderate: 30}
	require.NoError(t, f.svc.ReloadEngine(strict))
	assert.Equal(t, constants.BandSevere, f.svc.Classifier().ClassifyScore(80))
}

func TestNewRiskAssessmentService_RequiresRepositories(t *testing.T) {
	_, err := NewRiskAssessmentService(service.DefaultEngineConfig(), RiskAssessmentDeps{}, logger.NewNoopLogger())
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidConfig))
}

// memSnapshots fails the test if two passes overlap.
type memSnapshots struct {
	t        *testing.T
	mu       sync.Mutex
	latest   *models.Snapshot
	inFlight atomic.Int32
	saved    int
}

func (m *memSnapshots) SaveSnapshot(_ context.Context, s *models.Snapshot) error {
	defer m.inFlight.Add(-1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = s
	m.saved++
	return nil
}

func (m *memSnapshots) LatestSnapshot(context.Context) (*models.Snapshot, error) {
	if n := m.inFlight.Add(1); n != 1 {
		m.t.Errorf("overlapping passes: %d in flight", n)
	}
	time.Sleep(time.Millisecond)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, nil
}

func (m *memSnapshots) GetProfile(context.Context, string) (*models.EntityRiskProfile, error) {
	return nil, errors.ErrNotFound("entity risk profile", "")
}

type memAlerts struct {
	mu     sync.Mutex
	alerts []models.AlertEntry
}

func (m *memAlerts) AppendAlerts(_ context.Context, a []models.AlertEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a...)
	return nil
}

func (m *memAlerts) ListAlerts(context.Context, string, int) ([]models.AlertEntry, error) {
	return nil, nil
}

func TestRunPass_Serialized(t *testing.T) {
	snaps := &memSnapshots{t: t}
	alerts := &memAlerts{}
	svc, err := NewRiskAssessmentService(service.DefaultEngineConfig(), RiskAssessmentDeps{
		Snapshots: snaps,
		Alerts:    alerts,
	}, logger.NewNoopLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.RunPass(context.Background(), []models.EntityRecord{uniformEntity(fmt.Sprintf("E%d", i%2), float64(95))}, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, snaps.saved)
	// Only dimension breaches fire: without a prior there is no crossing, and the
	// shared tracker keeps repeats from alerting again.
	assert.Len(t, alerts.alerts, 10)
}
