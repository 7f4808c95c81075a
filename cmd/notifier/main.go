// Command notifier consumes queued notification commands and delivers them
// through the LINE Messaging API.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/diewo77/go-members/internal/config"
	"github.com/diewo77/go-members/internal/logging"
	"github.com/diewo77/go-members/internal/notify"
)

func main() {
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

	if cfg.Line.ChannelAccessToken == "" {
		logger.Error("LINE_CHANNEL_ACCESS_TOKEN is required")
		closer.Close()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	line := notify.NewLineClient(cfg.Line.APIBaseURL, cfg.Line.ChannelAccessToken, cfg.Notify.Timeout)
	worker := notify.NewWorker(line, cfg.Notify.Attempts, cfg.Notify.Timeout, logger)

	logger.Info("notifier starting", "exchange", cfg.Notify.Exchange, "queue", cfg.Notify.Queue)
	err = worker.Run(ctx, notify.ConsumerConfig{
		URL:      cfg.Notify.AMQPURL,
		Exchange: cfg.Notify.Exchange,
		Queue:    cfg.Notify.Queue,
		Prefetch: 10,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("notifier stopped", "error", err)
		stop()
		closer.Close()
		os.Exit(1)
	}
	logger.Info("notifier stopped")
}
