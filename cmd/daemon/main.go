package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/kursadbilgin/notify-daemon/internal/channel"
	"github.com/kursadbilgin/notify-daemon/internal/config"
	"github.com/kursadbilgin/notify-daemon/internal/handler"
	"github.com/kursadbilgin/notify-daemon/internal/infra/postgresql"
	"github.com/kursadbilgin/notify-daemon/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notify-daemon/internal/infra/redis"
	"github.com/kursadbilgin/notify-daemon/internal/observability"
	"github.com/kursadbilgin/notify-daemon/internal/queue"
	"github.com/kursadbilgin/notify-daemon/internal/ratelimit"
	"github.com/kursadbilgin/notify-daemon/internal/repository"
	"github.com/kursadbilgin/notify-daemon/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const opsShutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.WorkerName)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("notify-daemon exited with error", zap.Error(err))
		stop()
		_ = logger.Sync()
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolOptions{MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := migrations.Migrate(db); err != nil {
			return fmt.Errorf("database migrations failed: %w", err)
		}
		logger.Info("database migrations applied")
	}

	var rdb *redis.Client
	var limiter ratelimit.RateLimiter = ratelimit.NewLocalRateLimiter(cfg.RateLimitPerSec)
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()

		limiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec, "")
		if err != nil {
			return fmt.Errorf("redis rate limiter init failed: %w", err)
		}
		logger.Info("using redis rate limiter", zap.Int("limitPerSec", cfg.RateLimitPerSec))
	}

	message := channel.Message{Subject: cfg.NotificationSubject, Body: cfg.NotificationBody}
	push, err := channel.NewPushGateway(cfg.PushGatewayURL, message)
	if err != nil {
		return fmt.Errorf("push channel init failed: %w", err)
	}
	email, err := channel.NewEmailSender(channel.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailSender(),
	}, message)
	if err != nil {
		return fmt.Errorf("email channel init failed: %w", err)
	}

	var publisher queue.OutcomePublisher = queue.NoopPublisher{}
	if cfg.RabbitMQURL != "" {
		mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		publisher = queue.NewRabbitMQPublisher(mq)
		logger.Info("publishing client outcomes", zap.String("queue", queue.OutcomeQueue))
	}
	defer publisher.Close()

	metrics := observability.NewMetrics()
	clients := repository.NewGormClientRepo(db)

	dispatcher, err := service.NewDispatcher(
		clients,
		service.Channels{Push: push, Email: email},
		cfg.WorkerName,
		cfg.DeliveryTimeout(),
		logger,
	)
	if err != nil {
		return err
	}
	dispatcher.SetMetrics(metrics)
	dispatcher.SetRateLimiter(limiter)
	dispatcher.SetPublisher(publisher)

	processor, err := service.NewBatchProcessor(clients, dispatcher, cfg.WorkerName, cfg.BatchSize, logger)
	if err != nil {
		return err
	}
	processor.SetMetrics(metrics)

	daemon, err := service.NewDaemon(processor, cfg.PollMinDelay(), cfg.PollMaxDelay(), logger)
	if err != nil {
		return err
	}

	ops := handler.NewOpsApp(handler.OpsDeps{
		SQLDB:   sqlDB,
		Redis:   rdb,
		Stats:   clients,
		Metrics: metrics,
	}, logger)
	go func() {
		if err := ops.Listen(fmt.Sprintf(":%d", cfg.OpsPort)); err != nil {
			logger.Error("ops server stopped", zap.Error(err))
		}
	}()

	logger.Info("notify-daemon started",
		zap.Int("batchSize", cfg.BatchSize),
		zap.Int("opsPort", cfg.OpsPort),
	)

	runErr := daemon.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opsShutdownTimeout)
	defer cancel()
	if err := ops.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown failed", zap.Error(err))
	}

	logger.Info("notify-daemon stopped")
	return runErr
}
