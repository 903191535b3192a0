package psql

import (
	"context"
	"fmt"
	"time"

	"courier/courier/config"
	"courier/courier/sources/psql/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the database selected by cfg.DBDriver.
func NewDatabase(ctx context.Context, cfg config.Config, log *zap.Logger) (*Database, error) {
	level := logger.Error
	if cfg.IsDevelopment() {
		level = logger.Warn
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(level)}

	switch cfg.DBDriver {
	case config.DriverPostgres:
		return newPostgres(ctx, cfg, gormCfg, log)
	case config.DriverSQLite:
		log.Info("opening sqlite database", zap.String("file", cfg.DBName))
		db, err := Open(ctx, sqlite.Open(cfg.DBName), gormCfg)
		if err != nil {
			return nil, err
		}
		// one writer at a time, sqlite locks the whole file
		if sqlDB, err := db.DB.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

func newPostgres(ctx context.Context, cfg config.Config, gormCfg *gorm.Config, log *zap.Logger) (*Database, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
	)
	log.Info("connecting to database", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	return Open(ctx, postgres.Open(connStr), gormCfg)
}

// Open connects with any gorm dialector and migrates the schema.
func Open(ctx context.Context, dialector gorm.Dialector, gormCfg *gorm.Config) (*Database, error) {
	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return &Database{DB: db}, nil
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Document{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}
	return nil
}

func (db *Database) Close() {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
