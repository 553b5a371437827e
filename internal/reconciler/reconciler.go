package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gymdesk-billing/internal/billing"
	"github.com/angelmondragon/gymdesk-billing/pkg/db/models"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
	"github.com/angelmondragon/gymdesk-billing/pkg/metrics"
	"github.com/angelmondragon/gymdesk-billing/pkg/razorpay"
)

// SubscriptionFetcher reads the provider's current view of a subscription.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (*razorpay.Subscription, error)
}

// SubscriptionWriter persists a transition in one statement.
type SubscriptionWriter interface {
	ApplySubscriptionUpdate(ctx context.Context, id uuid.UUID, update billing.SubscriptionUpdate) error
}

// EnrichmentResult distinguishes a successful provider lookup from a failed
// one. On failure the transition proceeds with status only.
type EnrichmentResult struct {
	CurrentStart *time.Time
	CurrentEnd   *time.Time
	CustomerID   *string
	Err          error
}

// OK reports whether the lookup succeeded.
func (e EnrichmentResult) OK() bool {
	return e.Err == nil
}

// Result reports what a reconciliation did.
type Result struct {
	Outcome    enums.ReconcileOutcome
	Status     enums.SubscriptionStatus
	Enrichment *EnrichmentResult
}

// Params groups reconciler dependencies.
type Params struct {
	Store   SubscriptionWriter
	Fetcher SubscriptionFetcher
	Logger  *logger.Logger
	Metrics *metrics.WebhookMetrics
}

// Reconciler applies provider events onto local subscription rows.
type Reconciler struct {
	store   SubscriptionWriter
	fetcher SubscriptionFetcher
	logg    *logger.Logger
	metrics *metrics.WebhookMetrics
}

func New(params Params) (*Reconciler, error) {
	if params.Store == nil {
		return nil, errors.New("subscription store is required")
	}
	if params.Fetcher == nil {
		return nil, errors.New("subscription fetcher is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Reconciler{
		store:   params.Store,
		fetcher: params.Fetcher,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Reconcile applies the transition for eventType to sub. The only error it
// returns is a failed status write; enrichment failures degrade to a
// status-only update. sub is updated in place on success.
func (r *Reconciler) Reconcile(ctx context.Context, eventType string, sub *models.Subscription) (Result, error) {
	if sub == nil {
		return Result{Outcome: enums.ReconcileOutcomeUnmatched}, nil
	}
	transition, ok := Lookup(eventType)
	if !ok {
		return Result{Outcome: enums.ReconcileOutcomeIgnored, Status: sub.Status}, nil
	}

	status := transition.Status
	update := billing.SubscriptionUpdate{Status: &status}
	result := Result{Outcome: enums.ReconcileOutcomeApplied, Status: status}

	// The provider fetch happens before the write and outside any transaction.
	if transition.Enrich {
		enrichment := r.enrich(ctx, sub)
		result.Enrichment = &enrichment
		if enrichment.OK() {
			withEnrichment(&update, enrichment)
		} else {
			result.Outcome = enums.ReconcileOutcomeStatusOnly
		}
	}

	if err := r.store.ApplySubscriptionUpdate(ctx, sub.ID, update); err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply subscription transition")
	}
	applyInMemory(sub, update)

	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"subscription_id": sub.ID.String(),
		"status":          status.String(),
		"outcome":         result.Outcome.String(),
	}), "subscription transition applied")
	return result, nil
}

// RefreshPeriod retries enrichment for a row whose earlier activation was
// saved status-only. Rows that left active since then are not touched.
func (r *Reconciler) RefreshPeriod(ctx context.Context, sub *models.Subscription) (Result, error) {
	if sub == nil {
		return Result{Outcome: enums.ReconcileOutcomeUnmatched}, nil
	}
	if sub.Status != enums.SubscriptionStatusActive {
		return Result{Outcome: enums.ReconcileOutcomeSuperseded, Status: sub.Status}, nil
	}

	enrichment := r.enrich(ctx, sub)
	result := Result{Outcome: enums.ReconcileOutcomeStatusOnly, Status: sub.Status, Enrichment: &enrichment}
	if !enrichment.OK() {
		return result, nil
	}

	var update billing.SubscriptionUpdate
	withEnrichment(&update, enrichment)
	result.Outcome = enums.ReconcileOutcomeApplied
	if update.IsEmpty() {
		return result, nil
	}
	if err := r.store.ApplySubscriptionUpdate(ctx, sub.ID, update); err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh subscription period")
	}
	applyInMemory(sub, update)
	return result, nil
}

func (r *Reconciler) enrich(ctx context.Context, sub *models.Subscription) EnrichmentResult {
	if sub.ProviderSubscriptionID == nil || *sub.ProviderSubscriptionID == "" {
		return EnrichmentResult{Err: errors.New("subscription has no provider id")}
	}
	remote, err := r.fetcher.FetchSubscription(ctx, *sub.ProviderSubscriptionID)
	if err == nil && remote == nil {
		err = errors.New("provider returned no subscription")
	}
	if err != nil {
		r.metrics.IncEnrichmentFailure()
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"subscription_id": sub.ID.String(),
			"error":           err.Error(),
		}), "subscription enrichment failed, saving status only")
		return EnrichmentResult{Err: err}
	}
	return EnrichmentResult{
		CurrentStart: remote.CurrentStart,
		CurrentEnd:   remote.CurrentEnd,
		CustomerID:   remote.CustomerID,
	}
}

func withEnrichment(update *billing.SubscriptionUpdate, enrichment EnrichmentResult) {
	update.CurrentStart = enrichment.CurrentStart
	update.CurrentEnd = enrichment.CurrentEnd
	update.CustomerID = enrichment.CustomerID
}

func applyInMemory(sub *models.Subscription, update billing.SubscriptionUpdate) {
	if update.Status != nil {
		sub.Status = *update.Status
	}
	if update.CurrentStart != nil {
		start := update.CurrentStart.UTC()
		sub.CurrentStart = &start
	}
	if update.CurrentEnd != nil {
		end := update.CurrentEnd.UTC()
		sub.CurrentEnd = &end
	}
	if update.CustomerID != nil && sub.ProviderCustomerID == nil {
		customer := *update.CustomerID
		sub.ProviderCustomerID = &customer
	}
}
