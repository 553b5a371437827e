package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/gymdesk-billing/api/responses"
	"github.com/angelmondragon/gymdesk-billing/pkg/config"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
)

const (
	envHeader    = "X-Gymdesk-Env"
	readyTimeout = 2 * time.Second
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessCheck names a dependency for the readiness report.
type ReadinessCheck struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every check and answers 503 when any of them fails.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		report := map[string]string{}
		failed := false
		for _, check := range checks {
			if check.Pinger == nil {
				continue
			}
			if err := check.Pinger.Ping(ctx); err != nil {
				failed = true
				report[check.Name] = "down"
				responses.LogError(logg.WithField(r.Context(), "dependency", check.Name), logg, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "readiness check failed"))
				continue
			}
			report[check.Name] = "up"
		}

		if failed {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "checks": report})
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": report})
	}
}

// Metrics exposes the registry in the Prometheus text format.
func Metrics(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
