package razorpaywebhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gymdesk-billing/internal/billing"
	"github.com/angelmondragon/gymdesk-billing/internal/billing/billingtest"
	"github.com/angelmondragon/gymdesk-billing/internal/reconciler"
	"github.com/angelmondragon/gymdesk-billing/pkg/db/models"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
	"github.com/angelmondragon/gymdesk-billing/pkg/razorpay"
)

type stubFetcher struct {
	sub *razorpay.Subscription
	err error
}

func (s *stubFetcher) FetchSubscription(ctx context.Context, id string) (*razorpay.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sub, nil
}

func activePeriod() *razorpay.Subscription {
	start := time.Unix(1700000000, 0).UTC()
	end := time.Unix(1702600000, 0).UTC()
	return &razorpay.Subscription{ID: "sub_123", Status: "active", CurrentStart: &start, CurrentEnd: &end}
}

type fixture struct {
	conn    *gorm.DB
	fetcher *stubFetcher
	svc     *Service
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		conn:    billingtest.NewDB(t),
		fetcher: &stubFetcher{sub: activePeriod()},
		clock:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	repo := billing.NewRepository(f.conn)
	rec, err := reconciler.New(reconciler.Params{Store: repo, Fetcher: f.fetcher, Logger: logger.Nop()})
	require.NoError(t, err)
	f.svc, err = NewService(ServiceParams{
		Repo:       repo,
		Reconciler: rec,
		Logger:     logger.Nop(),
		Now: func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		},
	})
	require.NoError(t, err)
	return f
}

func mustParse(t *testing.T, body string) *Event {
	t.Helper()
	event, err := Parse([]byte(body))
	require.NoError(t, err)
	return event
}

func (f *fixture) reconciliation(t *testing.T, eventID uuid.UUID) *models.EventReconciliation {
	t.Helper()
	rec, err := billing.NewRepository(f.conn).FindReconciliation(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestHandleEventActivatesMatchedSubscription(t *testing.T) {
	f := newFixture(t)
	sub := billingtest.CreateSubscription(t, f.conn, billingtest.WithProviderID("sub_123"))
	event := mustParse(t, `{"event":"subscription.activated","payload":{"subscription":{"entity":{"id":"sub_123"}}}}`)
	event.DeliveryID = "evt_1"

	receipt, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileOutcomeApplied, receipt.Outcome)
	require.NotNil(t, receipt.SubscriptionID)
	assert.Equal(t, sub.ID, *receipt.SubscriptionID)

	stored := billingtest.ReloadSubscription(t, f.conn, sub.ID)
	assert.Equal(t, enums.SubscriptionStatusActive, stored.Status)
	assert.True(t, stored.CurrentStart.Equal(time.Unix(1700000000, 0)))
	assert.True(t, stored.CurrentEnd.Equal(time.Unix(1702600000, 0)))

	assert.EqualValues(t, 1, billingtest.CountPaymentEvents(t, f.conn, "subscription_id = ? AND event_type = ?", sub.ID, "subscription.activated"))
	var logged models.PaymentEvent
	require.NoError(t, f.conn.First(&logged, "id = ?", receipt.PaymentEventID).Error)
	assert.Equal(t, string(event.Raw), logged.Payload)
	require.NotNil(t, logged.ProviderEventID)
	assert.Equal(t, "evt_1", *logged.ProviderEventID)
}

func TestHandleEventUnmatchedLogsOnceWithoutMutation(t *testing.T) {
	f := newFixture(t)
	other := billingtest.CreateSubscription(t, f.conn, billingtest.WithProviderID("sub_other"))

	receipt, err := f.svc.HandleEvent(context.Background(), mustParse(t, `{"event":"subscription.cancelled","payload":{"subscription":{"entity":{"id":"sub_missing"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileOutcomeUnmatched, receipt.Outcome)
	assert.Nil(t, receipt.SubscriptionID)

	assert.EqualValues(t, 1, billingtest.CountPaymentEvents(t, f.conn, ""))
	assert.EqualValues(t, 1, billingtest.CountPaymentEvents(t, f.conn, "subscription_id IS NULL AND provider_subscription_id = ?", "sub_missing"))
	assert.Equal(t, enums.SubscriptionStatusCreated, billingtest.ReloadSubscription(t, f.conn, other.ID).Status)
	assert.Equal(t, enums.ReconcileOutcomeUnmatched, f.reconciliation(t, receipt.PaymentEventID).Outcome)
}

func TestHandleEventWithoutSubscriptionLogsUnlinked(t *testing.T) {
	f := newFixture(t)
	receipt, err := f.svc.HandleEvent(context.Background(), mustParse(t, `{"event":"refund.created","payload":{"payment":{"entity":{"id":"pay_9","amount":50000}}}}`))
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileOutcomeNoSubscription, receipt.Outcome)

	var logged models.PaymentEvent
	require.NoError(t, f.conn.First(&logged, "id = ?", receipt.PaymentEventID).Error)
	assert.Nil(t, logged.SubscriptionID)
	require.NotNil(t, logged.ProviderPaymentID)
	assert.Equal(t, "pay_9", *logged.ProviderPaymentID)
	require.NotNil(t, logged.Amount)
	assert.EqualValues(t, 500, *logged.Amount)
}

func TestHandleEventEnrichmentFailureIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = pkgerrors.New(pkgerrors.CodeDependency, "razorpay fetch subscription timed out")
	sub := billingtest.CreateSubscription(t, f.conn, billingtest.WithProviderID("sub_123"))

	receipt, err := f.svc.HandleEvent(context.Background(), mustParse(t, `{"event":"subscription.charged","payload":{"subscription":{"entity":{"id":"sub_123"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileOutcomeStatusOnly, receipt.Outcome)
	assert.Equal(t, enums.SubscriptionStatusActive, billingtest.ReloadSubscription(t, f.conn, sub.ID).Status)

	rec := f.reconciliation(t, receipt.PaymentEventID)
	require.NotNil(t, rec.LastError)
	assert.Contains(t, *rec.LastError, "timed out")

	f.fetcher.err = nil
	retried, err := f.svc.Retry(context.Background(), *rec)
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileOutcomeApplied, retried.Outcome)
	assert.Equal(t, 2, retried.Attempts)
	stored := billingtest.ReloadSubscription(t, f.conn, sub.ID)
	require.NotNil(t, stored.CurrentEnd)
	assert.True(t, stored.CurrentEnd.Equal(time.Unix(1702600000, 0)))
	assert.Equal(t, enums.ReconcileOutcomeApplied, f.reconciliation(t, receipt.PaymentEventID).Outcome)
}

func TestHandleEventUnknownTypeIsIgnored(t *testing.T) {
	f := newFixture(t)
	sub := billingtest.CreateSubscription(t, f.conn, billingtest.WithProviderID("sub_123"), billingtest.WithStatus(enums.SubscriptionStatusActive))

	receipt, err := f.svc.HandleEvent(context.Background(), mustParse(t, `{"event":"subscription.updated","payload":{"subscription":{"entity":{"id":"sub_123"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileOutcomeIgnored, receipt.Outcome)
	assert.Equal(t, enums.SubscriptionStatusActive, billingtest.ReloadSubscription(t, f.conn, sub.ID).Status)
	assert.EqualValues(t, 1, billingtest.CountPaymentEvents(t, f.conn, "subscription_id = ?", sub.ID))
}

func TestReplayMatchesLateSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receipt, err := f.svc.HandleEvent(ctx, mustParse(t, `{"event":"subscription.activated","payload":{"subscription":{"entity":{"id":"sub_123"}}}}`))
	require.NoError(t, err)
	require.Equal(t, enums.ReconcileOutcomeUnmatched, receipt.Outcome)

	sub := billingtest.CreateSubscription(t, f.conn, billingtest.WithProviderID("sub_123"))
	replayed, err := f.svc.Replay(ctx, receipt.PaymentEventID)
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileOutcomeApplied, replayed.Outcome)
	assert.Equal(t, 2, replayed.Attempts)
	assert.Equal(t, enums.SubscriptionStatusActive, billingtest.ReloadSubscription(t, f.conn, sub.ID).Status)

	rec := f.reconciliation(t, receipt.PaymentEventID)
	require.NotNil(t, rec.SubscriptionID)
	assert.Equal(t, sub.ID, *rec.SubscriptionID)
}

func TestRetrySkipsSupersededEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	late, err := f.svc.HandleEvent(ctx, mustParse(t, `{"event":"subscription.activated","payload":{"subscription":{"entity":{"id":"sub_123"}}}}`))
	require.NoError(t, err)

	sub := billingtest.CreateSubscription(t, f.conn, billingtest.WithProviderID("sub_123"))
	_, err = f.svc.HandleEvent(ctx, mustParse(t, `{"event":"subscription.cancelled","payload":{"subscription":{"entity":{"id":"sub_123"}}}}`))
	require.NoError(t, err)

	retried, err := f.svc.Retry(ctx, *f.reconciliation(t, late.PaymentEventID))
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileOutcomeSuperseded, retried.Outcome)
	assert.Equal(t, enums.SubscriptionStatusCancelled, billingtest.ReloadSubscription(t, f.conn, sub.ID).Status)
}

func TestReplayUnknownEvent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Replay(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

type failingRepo struct {
	billing.Repository
	appendErr error
}

func (r *failingRepo) AppendPaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	return r.appendErr
}

func TestHandleEventAppendFailureIsRetryable(t *testing.T) {
	conn := billingtest.NewDB(t)
	repo := &failingRepo{Repository: billing.NewRepository(conn), appendErr: errors.New("db down")}
	rec, err := reconciler.New(reconciler.Params{Store: repo, Fetcher: &stubFetcher{}, Logger: logger.Nop()})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{Repo: repo, Reconciler: rec, Logger: logger.Nop()})
	require.NoError(t, err)

	_, err = svc.HandleEvent(context.Background(), mustParse(t, `{"event":"subscription.halted"}`))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.EqualValues(t, 0, billingtest.CountPaymentEvents(t, conn, ""))
}
