package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lisanmuaddib/tweet-digest/pkg/db/models"
)

// SetupDatabase opens the configured database and brings its schema up to date.
// Postgres schemas are managed by the embedded migrations; sqlite files are auto-migrated.
func SetupDatabase(config *Config) (*gorm.DB, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	logger.WithField("driver", config.Driver()).Debug("Starting database setup")

	gormConfig := &gorm.Config{
		Logger: NewGormLogrusLogger(logger),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch config.Driver() {
	case DriverPostgres:
		if err := RunMigrations(logger, config.URL); err != nil {
			return nil, err
		}
		logger.Debug("Establishing GORM database connection")
		db, err = gorm.Open(postgres.Open(config.URL), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	default:
		db, err = gorm.Open(sqlite.Open(config.sqlitePath()), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sqlite handle: %w", err)
		}
		// sqlite allows a single writer; an in-memory database also lives on one connection
		sqlDB.SetMaxOpenConns(1)

		if err := db.AutoMigrate(&models.ScheduledTask{}); err != nil {
			return nil, fmt.Errorf("failed to auto-migrate database schema: %w", err)
		}
	}

	logger.Info("Database setup completed successfully")
	return db, nil
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
