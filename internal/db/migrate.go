package db

import (
	"errors"
	"fmt"
	"log/slog"

	migrate "github.com/golang-migrate/migrate/v4"
	// The following blank imports register the postgres driver and file source for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/gorm"

	"github.com/diewo77/go-members/internal/config"
	"github.com/diewo77/go-members/internal/models"
)

// Models lists every persisted model, in dependency order.
func Models() []any {
	return []any{
		&models.User{},
		&models.UserProfile{},
		&models.Survey{},
		&models.Store{},
		&models.Visit{},
	}
}

// Migrate brings the schema up to date. With APP_MIGRATIONS set it runs the
// SQL migrations through golang-migrate (Postgres only); otherwise it falls
// back to gorm AutoMigrate for development and tests.
func Migrate(gdb *gorm.DB, cfg config.Config, log *slog.Logger) error {
	if cfg.App.Migrations {
		if cfg.Database.Driver != "postgres" {
			return errors.New("sql migrations require DB_DRIVER=postgres")
		}
		url := ToURLDSN(DSN(cfg.Database))
		log.Info("running sql migrations", "dir", cfg.App.MigrationsDir)
		if err := RunSQLMigrations(cfg.App.MigrationsDir, url); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
	} else {
		if err := AutoMigrate(gdb); err != nil {
			return err
		}
	}
	return checkTables(gdb)
}

// AutoMigrate creates or updates every table from the models.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// RunSQLMigrations executes the migrations in dir against a URL style DSN.
func RunSQLMigrations(dir, url string) error {
	m, err := migrate.New("file://"+dir, url)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func checkTables(gdb *gorm.DB) error {
	for _, table := range []string{"users", "user_profiles", "surveys", "stores", "visits"} {
		if !gdb.Migrator().HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}
