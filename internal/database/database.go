// Package database opens the shared *sql.DB and the gorm connection on top of it.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mickamy/auditlog"
	"github.com/mickamy/auditlog/internal/config"
)

// DB bundles both views of one connection pool.
type DB struct {
	SQL         *sql.DB
	Gorm        *gorm.DB
	Placeholder auditlog.Placeholder
}

// Options controls Open.
type Options struct {
	Driver       string // config.DriverSQLite or config.DriverPostgres
	DSN          string
	GormLogLevel string // silent, error, warn, info
}

// OptionsFrom maps application config to Options.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DatabaseURL,
		GormLogLevel: cfg.GormLogLevel,
	}
}

// Open connects, pings and wraps the pool with gorm.
func Open(ctx context.Context, opts Options) (*DB, error) {
	sqlDB, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var (
		dialector   gorm.Dialector
		placeholder auditlog.Placeholder
	)
	switch opts.Driver {
	case config.DriverSQLite:
		// sqlite allows a single writer; a wrapped transaction and the
		// store must not race for the lock on separate connections
		sqlDB.SetMaxOpenConns(1)
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		dialector = &sqlite.Dialector{DriverName: config.DriverSQLite, Conn: sqlDB}
		placeholder = auditlog.Question
	case config.DriverPostgres:
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
		placeholder = auditlog.Dollar
	default:
		_ = sqlDB.Close()
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormLogLevel(opts.GormLogLevel)),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return &DB{SQL: sqlDB, Gorm: gormDB, Placeholder: placeholder}, nil
}

// Close closes the shared pool.
func (db *DB) Close() error {
	return db.SQL.Close()
}

func gormLogLevel(s string) gormlogger.LogLevel {
	switch strings.ToLower(s) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
