package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
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
	"github.com/kursadbilgin/notification-dispatcher/internal/template"
	"github.com/kursadbilgin/notification-dispatcher/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "notification-api")
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

	definitions, err := loadDefinitions(cfg)
	if err != nil {
		logger.Fatal("notification definitions failed to load", zap.Error(err))
	}

	providers, err := buildProviders(cfg, rdb)
	if err != nil {
		logger.Fatal("provider registry initialization failed", zap.Error(err))
	}

	templates := template.NewRepoStore(
		repository.NewGormTemplateRepo(db),
		cfg.DefaultCulture,
		logger,
		template.WithCache(rdb, cfg.TemplateCacheTTL()),
	)

	notificationService, err := service.NewNotificationService(service.NotificationServiceDeps{
		Definitions:   definitions,
		Providers:     providers,
		Templates:     templates,
		Localizer:     localization.NewStaticLocalizer(cfg.DefaultCulture, nil),
		Events:        queue.NewEventPublisher(queue.NewRabbitMQPublisher(rabbit), topology),
		Notifications: repository.NewGormNotificationStore(db),
		Subscriptions: repository.NewGormSubscriptionRepo(db),
	}, logger)
	if err != nil {
		logger.Fatal("notification service initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{
		AppName:      "notification-api",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, rabbit)
	handler.RegisterMetricsRoute(app, metrics)
	if err := handler.RegisterNotificationRoutes(app, notificationService); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	logger.Info("notification api started",
		zap.Int("port", cfg.APIPort),
		zap.Int("definitions", len(definitions.List())),
		zap.Strings("providers", providers.Names()),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	}

	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout()); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	logger.Info("notification api stopped")
}

func loadDefinitions(cfg *config.Config) (*definition.Registry, error) {
	registry, err := definition.NewRegistry()
	if err != nil {
		return nil, err
	}
	if cfg.DefinitionsFile != "" {
		if err := definition.LoadFile(registry, cfg.DefinitionsFile); err != nil {
			return nil, err
		}
	}
	return registry, nil
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
