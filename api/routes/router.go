package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gymdesk-billing/api/controllers"
	admincontrollers "github.com/angelmondragon/gymdesk-billing/api/controllers/admin"
	billingcontrollers "github.com/angelmondragon/gymdesk-billing/api/controllers/billing"
	webhookcontrollers "github.com/angelmondragon/gymdesk-billing/api/controllers/webhooks"
	"github.com/angelmondragon/gymdesk-billing/api/middleware"
	billingsvc "github.com/angelmondragon/gymdesk-billing/internal/billing"
	razorpaywebhook "github.com/angelmondragon/gymdesk-billing/internal/webhooks/razorpay"
	"github.com/angelmondragon/gymdesk-billing/pkg/config"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
	"github.com/angelmondragon/gymdesk-billing/pkg/metrics"
)

// Params wires the HTTP surface. DB and Redis are readiness checks; Cache
// backs request idempotency and may be nil.
type Params struct {
	Config *config.Config
	Logger *logger.Logger

	DB       controllers.Pinger
	Redis    controllers.Pinger
	Cache    middleware.ResponseCache
	Gatherer prometheus.Gatherer

	Billing        *billingsvc.Service
	WebhookService *razorpaywebhook.Service
	WebhookGuard   *razorpaywebhook.IdempotencyGuard
	WebhookMetrics *metrics.WebhookMetrics
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "db", Pinger: p.DB},
			controllers.ReadinessCheck{Name: "redis", Pinger: p.Redis},
		))
	})
	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", controllers.Metrics(p.Gatherer))
	}

	webhookParams := webhookcontrollers.RazorpayWebhookParams{
		Secret:       cfg.Razorpay.WebhookSecret,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		Metrics:      p.WebhookMetrics,
		Logger:       logg,
	}
	if p.WebhookService != nil {
		webhookParams.Service = p.WebhookService
	}
	if p.WebhookGuard != nil {
		webhookParams.Guard = p.WebhookGuard
	}
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/razorpay", webhookcontrollers.RazorpayWebhook(webhookParams))
	})

	var (
		planService         billingcontrollers.PlanService
		subscriptionService billingcontrollers.SubscriptionService
		entitlementChecker  middleware.EntitlementChecker
		eventLister         admincontrollers.PaymentEventLister
		eventReplayer       admincontrollers.PaymentEventReplayer
	)
	if p.Billing != nil {
		planService, subscriptionService, entitlementChecker, eventLister = p.Billing, p.Billing, p.Billing, p.Billing
	}
	if p.WebhookService != nil {
		eventReplayer = p.WebhookService
	}

	r.Route("/api/v1/billing", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.Idempotency(p.Cache, logg),
		)
		r.Get("/plans", billingcontrollers.PlansList(planService, logg))
		r.Get("/entitlement", billingcontrollers.Entitlement(subscriptionService, logg))
		r.Post("/checkout", billingcontrollers.Checkout(subscriptionService, logg))
		if entitlementChecker != nil {
			r.With(middleware.RequireActiveSubscription(entitlementChecker, logg)).Get("/access", billingcontrollers.Access())
		}
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RequireRole(logg, enums.ActorRoleAdmin),
			middleware.Idempotency(p.Cache, logg),
		)
		r.Get("/plans", billingcontrollers.AdminPlansList(planService, logg))
		r.Post("/plans", billingcontrollers.AdminPlanCreate(planService, logg))
		r.Get("/payment-events", admincontrollers.PaymentEventsList(eventLister, logg))
		r.Post("/payment-events/{eventId}/replay", admincontrollers.PaymentEventReplay(eventReplayer, logg))
	})

	return r
}
