package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/circuitbreaker"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/config"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/db"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/device"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/observ"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/push"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/sqs"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.PushQueueURL == "" {
		return errors.New("PUSH_QUEUE_URL is required")
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, db.Config{
		URL:      cfg.DatabaseURL,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	registry := device.NewRegistry(db.NewDeviceTokenRepository(database, logger), observ.Component(logger, "registry"))

	expo := push.NewExpoClient(push.ExpoConfig{
		URL:               cfg.ExpoPushURL,
		AccessToken:       cfg.ExpoAccessToken,
		RequestsPerSecond: cfg.PushRequestsPerSecond,
		Timeout:           cfg.PushTimeout,
	}, observ.Component(logger, "expo"))
	gateway := circuitbreaker.NewProtectedGateway(expo, circuitbreaker.New(circuitbreaker.DefaultConfig("expo"), logger), logger)

	dispatcher := push.NewDispatcher(registry, gateway, push.DispatcherConfig{
		ChunkSize:         cfg.PushChunkSize,
		ChannelID:         cfg.PushChannelID,
		RequestsPerSecond: cfg.PushRequestsPerSecond,
		RequestTimeout:    cfg.PushTimeout,
	}, observ.Component(logger, "dispatcher"))

	sqsCfg := sqs.Config{Region: cfg.AWSRegion, QueueURL: cfg.PushQueueURL}
	client, err := sqs.NewClient(ctx, sqsCfg)
	if err != nil {
		return fmt.Errorf("failed to create SQS client: %w", err)
	}

	consumer := worker.NewConsumer(
		sqs.NewConsumer(client, sqsCfg.QueueURL, observ.Component(logger, "sqs")),
		dispatcher,
		worker.ConsumerConfig{JobTimeout: cfg.FanoutTaskTimeout},
		observ.Component(logger, "consumer"),
	)

	logger.Info("push worker started", zap.String("queue_url", sqsCfg.QueueURL))
	consumer.Run(ctx)
	logger.Info("push worker stopped")

	return nil
}
