package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-smart-notifications/internal/application/dedup"
	"github.com/go-smart-notifications/internal/application/delivery"
	"github.com/go-smart-notifications/internal/application/notification"
	"github.com/go-smart-notifications/internal/application/rollout"
	"github.com/go-smart-notifications/internal/application/router"
	"github.com/go-smart-notifications/internal/application/template"
	"github.com/go-smart-notifications/internal/config"
	"github.com/go-smart-notifications/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-smart-notifications/internal/infrastructure/jwt"
	"github.com/go-smart-notifications/internal/infrastructure/postgres"
	redisinfra "github.com/go-smart-notifications/internal/infrastructure/redis"
	"github.com/go-smart-notifications/internal/infrastructure/sns"
	"github.com/go-smart-notifications/internal/infrastructure/telemetry"
	transporthttp "github.com/go-smart-notifications/internal/transport/http"
	"github.com/go-smart-notifications/internal/transport/http/handler"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file found, reading from environment")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg, "smart-notifications")
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	// Backend B: DynamoDB. Tables are created if they don't exist.
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("dynamodb client: %w", err)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
	dynRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications)

	// Backend A: PostgreSQL.
	db, err := postgres.Connect(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	defer sqlDB.Close()
	pgRepo := postgres.NewNotificationRepo(db)

	engine, err := rollout.NewEngine(rollout.FlagsFromConfig(cfg.Rollout, time.Now()), nil)
	if err != nil {
		return fmt.Errorf("rollout flags: %w", err)
	}

	checks := map[string]handler.Check{
		"postgresql": sqlDB.PingContext,
		"dynamodb": func(ctx context.Context) error {
			return dynamo.Ping(ctx, dynamoClient, cfg.DynamoTables.Notifications)
		},
	}

	var flagStore rollout.FlagStore
	if cfg.RedisURL != "" {
		rdb, err := redisinfra.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		flagStore = redisinfra.NewFlagStore(rdb, cfg.RedisFlagKey)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		logger.Warn("REDIS_URL not set, flag updates will not survive a restart")
	}
	flags := rollout.NewService(engine, flagStore, logger)
	if err := flags.Restore(ctx); err != nil {
		logger.Warn("could not restore feature flags", "err", err)
	}

	repo := router.NewSmartRepository(pgRepo, dynRepo, engine, router.Options{
		QueueSize:     cfg.MirrorQueueSize,
		MirrorTimeout: cfg.MirrorTimeout,
		Logger:        logger,
		Meter:         otel.Meter("github.com/go-smart-notifications"),
	})

	var notifier notification.Notifier
	if cfg.SNSTopicARN != "" {
		pub, err := sns.NewPublisher(ctx, cfg)
		if err != nil {
			return fmt.Errorf("sns publisher: %w", err)
		}
		notifier = delivery.NewDispatcher(pub, repo, nil, logger)
	} else {
		logger.Warn("SNS_TOPIC_ARN not set, notifications stay PENDING")
	}

	generator := notification.NewGenerationService(
		template.DefaultCatalog(),
		dedup.NewMatcher(repo, nil),
		template.NewComposer(nil, nil, logger),
		repo,
		notifier,
		logger,
	)

	verifier, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	deps := &transporthttp.Deps{
		Inbox:     notification.NewService(repo),
		Generator: generator,
		Flags:     flags,
		Verifier:  verifier,
		Checks:    checks,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "err", err)
	}
	// Pending mirror writes are flushed after the last request is done.
	if err := repo.Close(shutdownCtx); err != nil {
		logger.Warn("mirror queue not drained", "err", err)
	}
	logger.Info("server stopped")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
