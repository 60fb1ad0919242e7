//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

func TestRepositories_Postgres(t *testing.T) {
	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("Skipping Docker-dependent tests")
	}

	ctx := context.Background()
	pgContainer, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		tcpostgres.WithDatabase("risk"),
		tcpostgres.WithUsername("risk"),
		tcpostgres.WithPassword("risk"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(connStr), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	log := logger.NewNoopLogger()
	snapshots := NewSnapshotRepository(db, log)
	alerts := NewAlertRepository(db, log)

	taken := time.Now().UTC().Truncate(time.Microsecond)
	snap := models.NewSnapshot("pg-1", taken, []models.EntityRiskProfile{
		testProfile("E2", 91, constants.BandSevere),
		testProfile("E1", 20, constants.BandLow),
	})
	require.NoError(t, snapshots.SaveSnapshot(ctx, snap))

	latest, err := snapshots.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, latest.Profiles, 2)
	assert.Equal(t, "E2", latest.Profiles[0].EntityID)

	profile, err := snapshots.GetProfile(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, constants.BandLow, profile.Band)

	entry := models.AlertEntry{ID: "pg-a1", EntityID: "E2", Name: "n", Rule: constants.AlertRuleBandCrossing, Severity: constants.SeverityHigh, Date: taken}
	require.NoError(t, alerts.AppendAlerts(ctx, []models.AlertEntry{entry}))
	require.NoError(t, alerts.AppendAlerts(ctx, []models.AlertEntry{entry}))

	listed, err := alerts.ListAlerts(ctx, "E2", 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, entry, listed[0])
}
