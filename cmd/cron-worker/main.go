package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gymdesk-billing/api"
	"github.com/angelmondragon/gymdesk-billing/api/routes"
	"github.com/angelmondragon/gymdesk-billing/internal/billing"
	"github.com/angelmondragon/gymdesk-billing/internal/cron"
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
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "cron worker shutting down gracefully")
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

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)
	repo := billing.NewRepository(dbClient.DB())
	rec, err := reconciler.New(reconciler.Params{Store: repo, Fetcher: provider, Logger: logg, Metrics: webhookMetrics})
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

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	replayJob, err := cron.NewEventReplayJob(cron.EventReplayJobParams{
		Logger:      logg,
		Repo:        repo,
		Retrier:     webhookService,
		Metrics:     cronMetrics,
		BatchSize:   cfg.Reconcile.BatchSize,
		Lookback:    cfg.Reconcile.Lookback,
		MaxAttempts: cfg.Reconcile.MaxAttempts,
	})
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.DefaultLockName), cfg.Reconcile.Interval)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(replayJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Reconcile.Interval,
	})
	if err != nil {
		return err
	}

	if cfg.Service.MetricsPort != "" {
		ops := api.NewServer(":"+cfg.Service.MetricsPort, routes.NewOpsRouter(cfg, logg, prometheus.DefaultGatherer))
		go func() {
			if err := api.Serve(ctx, ops, logg); err != nil {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
	}

	ctx = logg.WithField(ctx, "service_kind", cfg.Service.Kind)
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}
