package razorpaywebhook

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gymdesk-billing/internal/billing"
	"github.com/angelmondragon/gymdesk-billing/internal/reconciler"
	"github.com/angelmondragon/gymdesk-billing/pkg/db/models"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
	"github.com/angelmondragon/gymdesk-billing/pkg/metrics"
)

// Reconciler applies events onto matched subscriptions.
type Reconciler interface {
	Reconcile(ctx context.Context, eventType string, sub *models.Subscription) (reconciler.Result, error)
	RefreshPeriod(ctx context.Context, sub *models.Subscription) (reconciler.Result, error)
}

type ServiceParams struct {
	Repo       billing.Repository
	Reconciler Reconciler
	Logger     *logger.Logger
	Metrics    *metrics.WebhookMetrics
	Now        func() time.Time
}

// Service matches verified deliveries, appends them to the event log and
// drives the reconciler.
type Service struct {
	repo       billing.Repository
	reconciler Reconciler
	logg       *logger.Logger
	metrics    *metrics.WebhookMetrics
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:       params.Repo,
		reconciler: params.Reconciler,
		logg:       params.Logger,
		metrics:    params.Metrics,
		now:        now,
	}, nil
}

// Receipt describes how a logged event was handled.
type Receipt struct {
	PaymentEventID uuid.UUID              `json:"payment_event_id"`
	SubscriptionID *uuid.UUID             `json:"subscription_id,omitempty"`
	EventType      string                 `json:"event_type"`
	Outcome        enums.ReconcileOutcome `json:"outcome"`
	Attempts       int                    `json:"attempts"`
}

// HandleEvent logs every event, linked when a subscription matches, and then
// reconciles matched events. Errors are CodeDependency and mean the provider
// should redeliver: either the audit append or the status write failed.
func (s *Service) HandleEvent(ctx context.Context, event *Event) (*Receipt, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	ctx = s.logg.WithEventType(ctx, event.Type)
	providerSubID := event.SubscriptionID()
	if providerSubID != "" {
		ctx = s.logg.WithSubscriptionID(ctx, providerSubID)
	}

	sub, err := s.repo.FindSubscriptionByProviderID(ctx, providerSubID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "match subscription")
	}

	record := s.auditRecord(event, sub)
	if err := s.repo.AppendPaymentEvent(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment event")
	}
	ctx = s.logg.WithPaymentEventID(ctx, record.ID.String())

	receipt := &Receipt{PaymentEventID: record.ID, EventType: event.Type, Attempts: 1}
	var cause error
	switch {
	case providerSubID == "":
		receipt.Outcome = enums.ReconcileOutcomeNoSubscription
	case sub == nil:
		receipt.Outcome = enums.ReconcileOutcomeUnmatched
	default:
		receipt.SubscriptionID = &sub.ID
		res, err := s.reconciler.Reconcile(ctx, event.Type, sub)
		if err != nil {
			s.logg.Error(ctx, "subscription transition failed", err)
			return receipt, err
		}
		receipt.Outcome = res.Outcome
		cause = enrichmentError(res)
	}

	s.saveOutcome(ctx, receipt, cause)
	s.finish(ctx, receipt)
	return receipt, nil
}

// Replay re-runs a stored event from its raw payload.
func (s *Service) Replay(ctx context.Context, paymentEventID uuid.UUID) (*Receipt, error) {
	stored, err := s.repo.FindPaymentEvent(ctx, paymentEventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment event")
	}
	if stored == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment event not found")
	}
	prior, err := s.repo.FindReconciliation(ctx, stored.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reconciliation")
	}
	return s.replay(ctx, stored, prior)
}

// Retry re-runs an earlier degraded reconciliation. Status-only outcomes only
// refresh period dates; unmatched events are re-matched.
func (s *Service) Retry(ctx context.Context, prior models.EventReconciliation) (*Receipt, error) {
	stored, err := s.repo.FindPaymentEvent(ctx, prior.PaymentEventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment event")
	}
	if stored == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment event not found")
	}
	if prior.Outcome != enums.ReconcileOutcomeStatusOnly {
		return s.replay(ctx, stored, &prior)
	}

	ctx = s.logg.WithEventType(ctx, stored.EventType)
	receipt := &Receipt{PaymentEventID: stored.ID, EventType: stored.EventType, Attempts: prior.Attempts + 1}
	sub, err := s.subscriptionFor(ctx, stored, prior.SubscriptionID, "")
	if err != nil {
		return nil, err
	}
	if sub == nil {
		receipt.Outcome = enums.ReconcileOutcomeUnmatched
		s.saveOutcome(ctx, receipt, nil)
		return receipt, nil
	}
	receipt.SubscriptionID = &sub.ID
	res, err := s.reconciler.RefreshPeriod(ctx, sub)
	if err != nil {
		return receipt, err
	}
	receipt.Outcome = res.Outcome
	s.saveOutcome(ctx, receipt, enrichmentError(res))
	s.finish(ctx, receipt)
	return receipt, nil
}

func (s *Service) replay(ctx context.Context, stored *models.PaymentEvent, prior *models.EventReconciliation) (*Receipt, error) {
	event, err := Parse([]byte(stored.Payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "stored payload is not valid json")
	}
	ctx = s.logg.WithEventType(ctx, event.Type)

	receipt := &Receipt{PaymentEventID: stored.ID, EventType: event.Type, Attempts: 1}
	var linked *uuid.UUID
	if prior != nil {
		receipt.Attempts = prior.Attempts + 1
		linked = prior.SubscriptionID
	}

	providerSubID := event.SubscriptionID()
	if providerSubID == "" {
		receipt.Outcome = enums.ReconcileOutcomeNoSubscription
		s.saveOutcome(ctx, receipt, nil)
		return receipt, nil
	}
	ctx = s.logg.WithSubscriptionID(ctx, providerSubID)

	sub, err := s.subscriptionFor(ctx, stored, linked, providerSubID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		receipt.Outcome = enums.ReconcileOutcomeUnmatched
		s.saveOutcome(ctx, receipt, nil)
		return receipt, nil
	}
	receipt.SubscriptionID = &sub.ID

	newer, err := s.repo.HasNewerAppliedEvent(ctx, sub.ID, stored.ReceivedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check newer events")
	}
	if newer {
		receipt.Outcome = enums.ReconcileOutcomeSuperseded
		s.saveOutcome(ctx, receipt, nil)
		s.finish(ctx, receipt)
		return receipt, nil
	}

	res, err := s.reconciler.Reconcile(ctx, event.Type, sub)
	if err != nil {
		return receipt, err
	}
	receipt.Outcome = res.Outcome
	s.saveOutcome(ctx, receipt, enrichmentError(res))
	s.finish(ctx, receipt)
	return receipt, nil
}

// subscriptionFor prefers the stored link, then the reconciliation link, then
// a fresh match on the provider id.
func (s *Service) subscriptionFor(ctx context.Context, stored *models.PaymentEvent, linked *uuid.UUID, providerSubID string) (*models.Subscription, error) {
	var id *uuid.UUID
	switch {
	case stored.SubscriptionID != nil:
		id = stored.SubscriptionID
	case linked != nil:
		id = linked
	}
	if id != nil {
		sub, err := s.repo.FindSubscriptionByID(ctx, *id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if sub != nil {
			return sub, nil
		}
	}
	if providerSubID == "" && stored.ProviderSubscriptionID != nil {
		providerSubID = *stored.ProviderSubscriptionID
	}
	sub, err := s.repo.FindSubscriptionByProviderID(ctx, providerSubID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "match subscription")
	}
	return sub, nil
}

func (s *Service) auditRecord(event *Event, sub *models.Subscription) *models.PaymentEvent {
	record := &models.PaymentEvent{
		EventType:              event.Type,
		ProviderEventID:        optional(event.DeliveryID),
		ProviderSubscriptionID: optional(event.SubscriptionID()),
		ProviderPaymentID:      optional(event.PaymentID()),
		ProviderInvoiceID:      optional(event.InvoiceID()),
		Amount:                 event.AmountMajor(),
		Payload:                string(event.Raw),
		ReceivedAt:             s.now().UTC(),
	}
	if sub != nil {
		id := sub.ID
		record.SubscriptionID = &id
	}
	return record
}

// saveOutcome records the outcome next to the immutable event. A failure here
// is logged only; the event and any transition are already durable.
func (s *Service) saveOutcome(ctx context.Context, receipt *Receipt, cause error) {
	rec := &models.EventReconciliation{
		PaymentEventID: receipt.PaymentEventID,
		SubscriptionID: receipt.SubscriptionID,
		Outcome:        receipt.Outcome,
		Attempts:       receipt.Attempts,
	}
	if cause != nil {
		msg := cause.Error()
		rec.LastError = &msg
	}
	if err := s.repo.SaveReconciliation(ctx, rec); err != nil {
		s.logg.Error(ctx, "save reconciliation outcome failed", err)
	}
}

func (s *Service) finish(ctx context.Context, receipt *Receipt) {
	s.metrics.IncEvent(receipt.EventType, receipt.Outcome.String())
	ctx = s.logg.WithField(ctx, "outcome", receipt.Outcome.String())
	if receipt.Outcome.NeedsReplay() {
		s.logg.Warn(ctx, "payment event logged, state not advanced")
		return
	}
	s.logg.Info(ctx, "payment event reconciled")
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func enrichmentError(res reconciler.Result) error {
	if res.Enrichment == nil {
		return nil
	}
	return res.Enrichment.Err
}
