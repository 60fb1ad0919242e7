// Package postgres provides the relational store of the fincore risk service.
// It manages the gorm connection (PostgreSQL in production, SQLite for local runs
// and tests) and implements the snapshot and alert repositories on top of it.
package postgres

import (
	"context"
	"fmt"
	"time"

	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// NewDBConnection opens the database selected by cfg.Driver and configures the pool.
//
// Parameters:
//   - ctx: Context for the initial health check
//   - cfg: Database configuration including driver, credentials and pool settings
//   - log: Logger instance for connection lifecycle events
//
// Returns:
//   - *gorm.DB: Ready-to-use database handle
//   - error: Connection establishment error if any
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.ErrInvalidConfig("database configuration is required")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = gormpostgres.Open(cfg.GetDSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, errors.ErrInvalidConfig(fmt.Sprintf("unsupported database driver %q", cfg.Driver))
	}

	log.Info(ctx, "Initializing database connection", logger.Fields{
		"driver":   cfg.Driver,
		"host":     cfg.Host,
		"database": cfg.Database,
	})

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeServerError, "failed to open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeServerError, "failed to access database pool")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}

	if err := Ping(ctx, db); err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	log.Info(ctx, "Database connection initialized successfully", logger.Fields{"driver": cfg.Driver})
	return db, nil
}

// AutoMigrate creates or updates the snapshot and alert tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&snapshotDBM{}, &profileDBM{}, &alertDBM{}); err != nil {
		return errors.WrapError(err, constants.ErrCodeServerError, "failed to migrate schema")
	}
	return nil
}

// Ping verifies database connectivity and responsiveness.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.WrapError(err, constants.ErrCodeServerError, "failed to access database pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return errors.WrapError(err, constants.ErrCodeServerError, "database ping failed")
	}
	return nil
}

// HealthCheck reports pool statistics for the health endpoint.
func HealthCheck(ctx context.Context, db *gorm.DB) (map[string]interface{}, error) {
	if err := Ping(ctx, db); err != nil {
		return nil, err
	}
	sqlDB, _ := db.DB()
	stats := sqlDB.Stats()
	return map[string]interface{}{
		"status":           "healthy",
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
	}, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
