package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/diewo77/go-members/internal/config"
	"github.com/diewo77/go-members/internal/db"
	"github.com/diewo77/go-members/internal/logging"
	"github.com/diewo77/go-members/internal/metrics"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Seed stores from APP_STORES_SEED_FILE and exit")
)

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	if *migrateOnlyFlag {
		if err := db.Migrate(gdb, *cfg, log); err != nil {
			return err
		}
		log.Info("migrations completed")
		return nil
	}
	if *seedOnlyFlag {
		return seedStores(ctx, cfg, gdb, log)
	}

	if err := db.Migrate(gdb, *cfg, log); err != nil {
		return err
	}
	if cfg.App.StoresSeedFile != "" {
		if err := seedStores(ctx, cfg, gdb, log); err != nil {
			return err
		}
	}

	m := metrics.New()
	w, err := wire(cfg, gdb, log, m)
	if err != nil {
		return err
	}
	defer w.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      NewApp(gdb, w.deps, w.verifier, m, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "dev", cfg.App.Dev, "notify_mode", cfg.Notify.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
	log.Info("server stopped gracefully")
	return nil
}

func seedStores(ctx context.Context, cfg *config.Config, gdb *gorm.DB, log *slog.Logger) error {
	if cfg.App.StoresSeedFile == "" {
		return errors.New("APP_STORES_SEED_FILE is not set")
	}
	n, err := db.SeedStores(ctx, gdb, cfg.App.StoresSeedFile)
	if err != nil {
		return err
	}
	log.Info("stores seeded", "file", cfg.App.StoresSeedFile, "inserted", n)
	return nil
}
