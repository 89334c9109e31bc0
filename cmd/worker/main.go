package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/concur-gateway/internal/channel"
	"github.com/kursadbilgin/concur-gateway/internal/config"
	"github.com/kursadbilgin/concur-gateway/internal/handler"
	"github.com/kursadbilgin/concur-gateway/internal/infra/postgresql"
	"github.com/kursadbilgin/concur-gateway/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/concur-gateway/internal/notify"
	"github.com/kursadbilgin/concur-gateway/internal/observability"
	"github.com/kursadbilgin/concur-gateway/internal/queue"
	"github.com/kursadbilgin/concur-gateway/internal/repository"
	"github.com/kursadbilgin/concur-gateway/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("concur-gateway-worker", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	db, err := postgresql.NewPostgres(startCtx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	broker, err := queue.NewRabbitMQ(startCtx, cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer broker.Close()

	metrics := observability.NewMetrics()

	registry := channel.NewRegistry(cfg.Channels(), channel.Options{
		Timeout:       cfg.ChannelTimeout(),
		RatePerSecond: cfg.ChannelRatePerSec,
		Format:        notify.Options{TopWarnings: cfg.TopWarningsLimit},
		Logger:        logger,
	})
	fanout := service.NewFanoutService(cfg.ChannelTimeout(), cfg.FanoutTimeout(), logger)

	worker, err := service.NewWorkerService(
		repository.NewGormChannelConfigRepo(db),
		repository.NewGormAttemptRepo(db),
		registry,
		fanout,
		queue.NewRabbitMQConsumer(broker, cfg.WorkerConcurrency, logger),
		queue.NewRabbitMQPublisher(broker),
		service.WorkerConfig{
			Concurrency:      cfg.WorkerConcurrency,
			MaxAttempts:      cfg.MaxDeliveryAttempts,
			DashboardBaseURL: cfg.DashboardBaseURL,
		},
		logger,
	)
	if err != nil {
		return err
	}
	worker.SetMetrics(metrics)

	metricsApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.RegisterHealthRoutes(metricsApp, sqlDB, nil, broker)
	metricsApp.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Start(groupCtx)
	})
	g.Go(func() error {
		logger.Info("metrics listening", zap.Int("port", cfg.MetricsPort))
		return metricsApp.Listen(fmt.Sprintf(":%d", cfg.MetricsPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down worker")
		return metricsApp.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
