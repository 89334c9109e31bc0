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
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/concur-gateway/internal/channel"
	"github.com/kursadbilgin/concur-gateway/internal/config"
	"github.com/kursadbilgin/concur-gateway/internal/handler"
	"github.com/kursadbilgin/concur-gateway/internal/infra/postgresql"
	"github.com/kursadbilgin/concur-gateway/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/concur-gateway/internal/infra/redis"
	"github.com/kursadbilgin/concur-gateway/internal/notify"
	"github.com/kursadbilgin/concur-gateway/internal/observability"
	"github.com/kursadbilgin/concur-gateway/internal/queue"
	"github.com/kursadbilgin/concur-gateway/internal/ratelimit"
	"github.com/kursadbilgin/concur-gateway/internal/repository"
	"github.com/kursadbilgin/concur-gateway/internal/service"
	"github.com/kursadbilgin/concur-gateway/internal/transport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	memoryShards    = 16
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("concur-gateway-api", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api stopped with error", zap.Error(err))
	}
	logger.Info("api stopped")
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

	rdb, err := infraredis.NewRedis(startCtx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	broker, err := queue.NewRabbitMQ(startCtx, cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer broker.Close()

	var limiter ratelimit.RateLimiter
	switch cfg.RateLimitBackend {
	case config.RateLimitBackendMemory:
		memory := ratelimit.NewMemoryLimiter(memoryShards)
		defer memory.Close()
		limiter = memory
	default:
		limiter, err = infraredis.NewRedisRateLimiter(rdb)
		if err != nil {
			return fmt.Errorf("redis rate limiter init failed: %w", err)
		}
	}

	metrics := observability.NewMetrics()

	tokens, err := service.NewTokenService(repository.NewGormTokenRepo(db), logger)
	if err != nil {
		return err
	}

	ingestion, err := service.NewIngestionService(
		tokens,
		limiter,
		repository.NewGormArtifactRepo(db),
		queue.NewRabbitMQPublisher(broker),
		service.IngestionConfig{
			LimitPrefix: cfg.RateLimitPrefix,
			Limit:       cfg.RateLimitPerWindow,
			Window:      cfg.RateLimitWindow(),
		},
		logger,
	)
	if err != nil {
		return err
	}
	ingestion.SetMetrics(metrics)

	registry := channel.NewRegistry(cfg.Channels(), channel.Options{
		Timeout:       cfg.ChannelTimeout(),
		RatePerSecond: cfg.ChannelRatePerSec,
		Format:        notify.Options{TopWarnings: cfg.TopWarningsLimit},
		Logger:        logger,
	})
	channels, err := service.NewChannelService(repository.NewGormChannelConfigRepo(db), registry, logger)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:               "concur-gateway",
		BodyLimit:             cfg.MaxReportBytes,
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(transport.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, broker)
	if err := handler.RegisterIngestRoutes(app, ingestion); err != nil {
		return err
	}
	enabled, err := handler.RegisterAdminRoutes(app, cfg.AdminAPIKey, tokens, channels)
	if err != nil {
		return err
	}
	if !enabled {
		logger.Warn("admin routes disabled: ADMIN_API_KEY is empty")
	}

	metricsApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	metricsApp.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		logger.Info("metrics listening", zap.Int("port", cfg.MetricsPort))
		return metricsApp.Listen(fmt.Sprintf(":%d", cfg.MetricsPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down api")

		return multierr.Combine(
			app.ShutdownWithTimeout(shutdownTimeout),
			metricsApp.ShutdownWithTimeout(shutdownTimeout),
		)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
