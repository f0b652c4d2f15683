package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/config"
	"github.com/kursadbilgin/notification-dispatcher/internal/definition"
	"github.com/kursadbilgin/notification-dispatcher/internal/handler"
	"github.com/kursadbilgin/notification-dispatcher/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-dispatcher/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notification-dispatcher/internal/infra/redis"
	"github.com/kursadbilgin/notification-dispatcher/internal/localization"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/queue"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/service"
	"github.com/kursadbilgin/notification-dispatcher/internal/subscription"
	"github.com/kursadbilgin/notification-dispatcher/internal/template"
	"github.com/kursadbilgin/notification-dispatcher/internal/tenant"
	"github.com/kursadbilgin/notification-dispatcher/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "notification-worker")
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.DefaultPoolOptions)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	topology := queue.Topology{EventsQueue: cfg.EventsQueue, RetryQueue: cfg.RetryQueue}
	rabbit, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL, topology)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	definitions, err := definition.NewRegistry()
	if err != nil {
		logger.Fatal("definition registry initialization failed", zap.Error(err))
	}
	if cfg.DefinitionsFile != "" {
		if err := definition.LoadFile(definitions, cfg.DefinitionsFile); err != nil {
			logger.Fatal("notification definitions failed to load", zap.Error(err))
		}
	}

	providers, err := buildProviders(cfg, rdb)
	if err != nil {
		logger.Fatal("provider registry initialization failed", zap.Error(err))
	}
	mappings := provider.NewMappings()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.ProviderRateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	retries := queue.NewRetryQueue(queue.NewRabbitMQPublisher(rabbit), topology)
	store := repository.NewGormNotificationStore(db)
	templates := template.NewRepoStore(
		repository.NewGormTemplateRepo(db),
		cfg.DefaultCulture,
		logger,
		template.WithCache(rdb, cfg.TemplateCacheTTL()),
	)

	dispatcher, err := service.NewDispatcher(service.DispatcherDeps{
		Definitions: definitions,
		Tenants:     tenant.NewCachedDirectory(repository.NewGormTenantRepo(db), rdb, cfg.TenantCacheTTL(), logger),
		Renderer:    template.NewTextRenderer(templates),
		Localizer:   localization.NewStaticLocalizer(cfg.DefaultCulture, nil),
		Resolver:    subscription.NewRepoResolver(repository.NewGormSubscriptionRepo(db)),
		Store:       store,
		Transactor:  repository.NewGormTransactor(db),
		Providers:   providers,
		Mappings:    mappings,
		Retries:     retries,
	}, cfg.TenantConcurrency, cfg.DefaultCulture, logger)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}

	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerPrefetch, logger, queue.WithMaxRedeliveries(cfg.WorkerMaxRedeliveries))
	defer consumer.Close()

	eventWorker, err := service.NewEventWorker(consumer, dispatcher, cfg.EventsQueue, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("event worker initialization failed", zap.Error(err))
	}

	retryWorker, err := service.NewRetryWorker(service.RetryWorkerDeps{
		Notifications: store,
		Attempts:      repository.NewGormAttemptRepo(db),
		Providers:     providers,
		Mappings:      mappings,
		RateLimiter:   limiter,
		Scheduler:     retries,
		Consumer:      consumer,
	}, cfg.RetryQueue, cfg.RetryMaxAttempts, cfg.RetryBaseDelay(), cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("retry worker initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher.SetMetrics(metrics)
	retryWorker.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:               "notification-worker",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	handler.RegisterHealthRoutes(app, sqlDB, rdb, rabbit)
	handler.RegisterMetricsRoute(app, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eventWorker.Start(gctx)
	})
	g.Go(func() error {
		return retryWorker.Start(gctx)
	})
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", cfg.MetricsPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(cfg.ShutdownTimeout())
	})

	logger.Info("notification worker started",
		zap.String("eventsQueue", cfg.EventsQueue),
		zap.String("retryQueue", cfg.RetryQueue),
		zap.Int("metricsPort", cfg.MetricsPort),
		zap.Strings("providers", providers.Names()),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("notification worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("notification worker stopped")
}

func buildProviders(cfg *config.Config, rdb *redis.Client) (*provider.Registry, error) {
	realtime, err := provider.NewRealtimeProvider(rdb)
	if err != nil {
		return nil, err
	}

	providers := []provider.Provider{realtime}
	if cfg.WebhookURL != "" {
		webhook, err := provider.NewWebhookProvider(cfg.WebhookURL)
		if err != nil {
			return nil, err
		}
		providers = append(providers, webhook)
	}

	return provider.NewRegistry(providers...)
}
