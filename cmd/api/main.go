package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/gymdesk-billing/api"
	"github.com/angelmondragon/gymdesk-billing/api/routes"
	"github.com/angelmondragon/gymdesk-billing/internal/billing"
	"github.com/angelmondragon/gymdesk-billing/internal/reconciler"
	razorpaywebhook "github.com/angelmondragon/gymdesk-billing/internal/webhooks/razorpay"
	"github.com/angelmondragon/gymdesk-billing/pkg/config"
	"github.com/angelmondragon/gymdesk-billing/pkg/db"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
	"github.com/angelmondragon/gymdesk-billing/pkg/metrics"
	"github.com/angelmondragon/gymdesk-billing/pkg/migrate"
	"github.com/angelmondragon/gymdesk-billing/pkg/razorpay"
	"github.com/angelmondragon/gymdesk-billing/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	provider, err := razorpay.NewClient(ctx, cfg.Razorpay, logg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	repo := billing.NewRepository(dbClient.DB())
	billingService, err := billing.NewService(billing.ServiceParams{
		Repo:     repo,
		Provider: provider,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	rec, err := reconciler.New(reconciler.Params{
		Store:   repo,
		Fetcher: provider,
		Logger:  logg,
		Metrics: webhookMetrics,
	})
	if err != nil {
		return err
	}
	webhookService, err := razorpaywebhook.NewService(razorpaywebhook.ServiceParams{
		Repo:       repo,
		Reconciler: rec,
		Logger:     logg,
		Metrics:    webhookMetrics,
	})
	if err != nil {
		return err
	}
	guard, err := razorpaywebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL)
	if err != nil {
		return err
	}

	handler := routes.NewRouter(routes.Params{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Cache:          redisClient,
		Gatherer:       registry,
		Billing:        billingService,
		WebhookService: webhookService,
		WebhookGuard:   guard,
		WebhookMetrics: webhookMetrics,
	})

	addr := ":" + cfg.App.Port
	ctx = logg.WithField(ctx, "addr", addr)
	logg.Info(ctx, "starting api server")
	return api.Serve(ctx, api.NewServer(addr, handler), logg)
}
