// Package db opens the relational store, applies the schema and seeds reference data.
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/diewo77/go-members/internal/config"
)

// connectAttempts bounds how long we wait for Postgres to accept connections at boot.
const connectAttempts = 10

// Open connects to the configured database, retrying while it starts up.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	dialector, dsn, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	level := gormlogger.Silent
	if cfg.Debug {
		level = gormlogger.Info
	}
	gcfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		TranslateError: true,
	}

	log.Info("connecting to database", "driver", cfg.Driver, "dsn", MaskDSN(dsn))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	gdb, err := backoff.Retry(ctx, func() (*gorm.DB, error) {
		d, err := gorm.Open(dialector, gcfg)
		if err != nil {
			return nil, err
		}
		if err := d.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
			return nil, err
		}
		return d, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(connectAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn("database not ready, retrying", "error", err, "wait", wait)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// A single connection serializes writers and keeps in-memory databases shared.
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return gdb, nil
}

// DSN returns the normalized connection string for cfg.
func DSN(cfg config.DatabaseConfig) string {
	if cfg.URL != "" {
		return NormalizeDSN(cfg.URL)
	}
	if cfg.Driver == "sqlite" {
		return "file:members.db"
	}
	return cfg.DSN()
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, string, error) {
	dsn := DSN(cfg)
	switch cfg.Driver {
	case "postgres", "":
		return postgres.Open(dsn), dsn, nil
	case "sqlite":
		return sqlite.Open(dsn), dsn, nil
	}
	return nil, "", errors.New("unsupported database driver: " + cfg.Driver)
}

// Ping checks that the database answers. Used by the health endpoint.
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
