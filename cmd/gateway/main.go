package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/api"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/circuitbreaker"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/config"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/db"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/device"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/fanout"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/metrics"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/notify"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/observ"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/push"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/recipient"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/redis"
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

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting notification gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()
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

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	registry := device.NewRegistry(db.NewDeviceTokenRepository(database, logger), observ.Component(logger, "registry"))
	store := notify.NewStore(db.NewNotificationRepository(database, logger), observ.Component(logger, "store"))

	// Redis backs idempotency, rate limiting and the government id cache.
	// Everything degrades to "off" when it is unreachable.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	resolverOpts := []recipient.Option{}
	deps := api.Deps{Devices: registry, Feed: store}
	health := []api.HealthCheck{{Name: "database", Check: database.Health, Required: true}}
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		defer redisClient.Close()
		health = append(health, api.HealthCheck{Name: "redis", Check: redisClient.Ping})
		resolverOpts = append(resolverOpts, recipient.WithCache(redis.NewRecipientCache(redisClient, logger), cfg.GovCacheTTL))
		deps.Idempotency = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  120,
			Window: time.Minute,
		})
	}

	resolver := recipient.New(db.NewUserRepository(database, logger), observ.Component(logger, "resolver"), resolverOpts...)
	deps.Roles = resolver

	// Push jobs go to SQS when a queue is configured and run in-process otherwise.
	var queue fanout.PushQueue
	if cfg.PushQueueURL != "" {
		client, err := sqs.NewClient(ctx, sqs.Config{Region: cfg.AWSRegion, QueueURL: cfg.PushQueueURL})
		if err != nil {
			return fmt.Errorf("failed to create SQS client: %w", err)
		}
		queue = sqs.NewProducer(client, cfg.PushQueueURL, observ.Component(logger, "producer"))
	} else {
		dispatcher, breaker := newDispatcher(cfg, registry, logger)
		queue = push.NewInlineQueue(dispatcher)
		health = append(health, api.HealthCheck{Name: "push_gateway", Check: breaker.Check})
		logger.Info("push queue not configured, dispatching in-process")
	}

	pool := worker.NewPool(worker.PoolConfig{
		Workers:     cfg.FanoutWorkers,
		QueueSize:   cfg.FanoutQueueSize,
		TaskTimeout: cfg.FanoutTaskTimeout,
	}, observ.Component(logger, "pool"))
	pool.Start()

	orchestrator := fanout.New(store, resolver, queue, pool, observ.Component(logger, "fanout"))
	deps.Events = orchestrator

	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		Handler:     api.NewHandler(logger, deps),
		JWTSecret:   cfg.JWTSecret,
		InternalKey: cfg.InternalAPIKey,
		CORSOrigins: cfg.CORSOrigins,
		RateLimiter: rateLimiter,
		Health:      health,
	})

	if cfg.InternalAPIKey == "" {
		logger.Warn("INTERNAL_API_KEY not set, event ingestion will reject every call")
	}

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go reportPoolStats(statsCtx, database)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		_ = pool.Stop(context.Background())
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		// Let accepted fan-outs finish before the database goes away.
		if err := pool.Stop(ctx); err != nil {
			logger.Warn("fan-out pool did not drain", zap.Error(err))
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

func newDispatcher(cfg *config.Config, registry push.Registry, logger *zap.Logger) (*push.Dispatcher, *circuitbreaker.Breaker) {
	expo := push.NewExpoClient(push.ExpoConfig{
		URL:               cfg.ExpoPushURL,
		AccessToken:       cfg.ExpoAccessToken,
		RequestsPerSecond: cfg.PushRequestsPerSecond,
		Timeout:           cfg.PushTimeout,
	}, observ.Component(logger, "expo"))

	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("expo"), logger)
	gateway := circuitbreaker.NewProtectedGateway(expo, breaker, logger)

	dispatcher := push.NewDispatcher(registry, gateway, push.DispatcherConfig{
		ChunkSize:         cfg.PushChunkSize,
		ChannelID:         cfg.PushChannelID,
		RequestsPerSecond: cfg.PushRequestsPerSecond,
		RequestTimeout:    cfg.PushTimeout,
	}, observ.Component(logger, "dispatcher"))
	return dispatcher, breaker
}

func reportPoolStats(ctx context.Context, database *db.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetDBConnections(database.Stats())
		}
	}
}
