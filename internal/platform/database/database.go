package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"foodDeliveryWs/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// sqlDriverName returns the database/sql driver registered for the configured backend.
func sqlDriverName(driver string) (string, error) {
	switch driver {
	case DriverPostgres, "":
		return "pgx", nil
	case DriverSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("%w: %s", config.ErrUnsupportedDriver, driver)
	}
}

// OpenSQL connects sqlx to the configured database and pings it.
func OpenSQL(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	name, err := sqlDriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(name, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == DriverSQLite {
		// sqlite serializes writers; a single connection also keeps :memory: databases alive
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if cfg.ConnMaxIdle > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdle)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return db, nil
}

// OpenGorm opens a gorm handle for the chat and announcement stores.
func OpenGorm(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres, "":
		dialector = postgres.Open(cfg.URL)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open gorm %s: %w", cfg.Driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql handle: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxIdle > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdle)
	}
	return db, nil
}
