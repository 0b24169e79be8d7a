package db

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pickup-push-backend/config"
	"pickup-push-backend/internal/logger"
	"pickup-push-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	log := logger.WithModule("db")

	dialector, err := Dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Info("running database migrations", zap.String("driver", cfg.Driver))
	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("database initialization complete")
	return db, nil
}

// Dialector picks the gorm dialector for a configured driver name.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate creates or updates every table the service reads or writes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Notification{},
		&model.PushSubscription{},
		&model.Match{},
		&model.Participant{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}
