package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gymdesk-billing/api/controllers"
	"github.com/angelmondragon/gymdesk-billing/api/middleware"
	"github.com/angelmondragon/gymdesk-billing/pkg/config"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
)

// NewOpsRouter serves liveness and metrics for background workers.
func NewOpsRouter(cfg *config.Config, logg *logger.Logger, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer(logg))
	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Method(http.MethodGet, "/metrics", controllers.Metrics(gatherer))
	return r
}
