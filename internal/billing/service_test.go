package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gymdesk-billing/internal/billing/billingtest"
	"github.com/angelmondragon/gymdesk-billing/pkg/db/models"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
	"github.com/angelmondragon/gymdesk-billing/pkg/razorpay"
)

type fakeCreator struct {
	calls  []razorpay.CreateSubscriptionParams
	result *razorpay.Subscription
	err    error
}

func (f *fakeCreator) CreateSubscription(ctx context.Context, params razorpay.CreateSubscriptionParams) (*razorpay.Subscription, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, provider SubscriptionCreator) *Service {
	t.Helper()
	conn := billingtest.NewDB(t)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Provider: provider,
		Logger:   logger.Nop(),
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop()})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Repo: NewRepository(billingtest.NewDB(t))})
	require.Error(t, err)
}

func TestIsActiveAt(t *testing.T) {
	future := fixedNow.Add(24 * time.Hour)
	past := fixedNow.Add(-24 * time.Hour)
	ptr := func(v time.Time) *time.Time { return &v }

	tests := []struct {
		name string
		sub  *models.Subscription
		want bool
	}{
		{name: "no subscription", sub: nil, want: false},
		{name: "trial running on created row", sub: &models.Subscription{Status: enums.SubscriptionStatusCreated, TrialEnd: ptr(future)}, want: true},
		{name: "trial running wins over cancelled", sub: &models.Subscription{Status: enums.SubscriptionStatusCancelled, TrialEnd: ptr(future)}, want: true},
		{name: "trial passed and cancelled", sub: &models.Subscription{Status: enums.SubscriptionStatusCancelled, TrialEnd: ptr(past)}, want: false},
		{name: "active inside period", sub: &models.Subscription{Status: enums.SubscriptionStatusActive, CurrentEnd: ptr(future)}, want: true},
		{name: "active without period end", sub: &models.Subscription{Status: enums.SubscriptionStatusActive}, want: true},
		{name: "active past period end", sub: &models.Subscription{Status: enums.SubscriptionStatusActive, CurrentEnd: ptr(past)}, want: false},
		{name: "halted inside period", sub: &models.Subscription{Status: enums.SubscriptionStatusHalted, CurrentEnd: ptr(future)}, want: false},
		{name: "created without trial", sub: &models.Subscription{Status: enums.SubscriptionStatusCreated}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsActiveAt(tt.sub, fixedNow))
		})
	}
}

func TestEntitlementUsesNewestSubscription(t *testing.T) {
	conn := billingtest.NewDB(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(conn), Logger: logger.Nop(), Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	owner := uuid.New()

	billingtest.CreateSubscription(t, conn,
		billingtest.WithOwner(owner),
		billingtest.WithCreatedAt(fixedNow.Add(-48*time.Hour)),
		billingtest.WithStatus(enums.SubscriptionStatusActive),
		billingtest.WithPeriod(fixedNow.Add(-time.Hour), fixedNow.Add(time.Hour)),
	)
	billingtest.CreateSubscription(t, conn,
		billingtest.WithOwner(owner),
		billingtest.WithCreatedAt(fixedNow.Add(-time.Hour)),
		billingtest.WithStatus(enums.SubscriptionStatusCancelled),
	)

	ent, err := svc.Entitlement(context.Background(), owner)
	require.NoError(t, err)
	assert.False(t, ent.Entitled)
	require.NotNil(t, ent.Status)
	assert.Equal(t, enums.SubscriptionStatusCancelled, *ent.Status)

	active, err := svc.IsActiveNow(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, active, "owner without subscription has no access")

	_, err = svc.Entitlement(context.Background(), uuid.Nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestCreatePlanValidatesAndRejectsDuplicates(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	input := CreatePlanInput{
		Name:           "Gym Pro",
		Interval:       enums.BillingIntervalMonthly,
		Price:          decimal.RequireFromString("1499.005"),
		ProviderPlanID: "plan_pro_monthly",
	}

	plan, err := svc.CreatePlan(ctx, input)
	require.NoError(t, err)
	assert.True(t, plan.IsActive)
	assert.Equal(t, "1499.01", plan.Price.StringFixed(2))

	_, err = svc.CreatePlan(ctx, input)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())

	bad := input
	bad.Interval = "weekly"
	_, err = svc.CreatePlan(ctx, bad)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	bad = input
	bad.Price = decimal.NewFromInt(-1)
	_, err = svc.CreatePlan(ctx, bad)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestStartCheckoutCreatesAndAttaches(t *testing.T) {
	provider := &fakeCreator{result: &razorpay.Subscription{ID: "sub_checkout", ShortURL: "https://rzp.io/i/abc"}}
	conn := billingtest.NewDB(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(conn), Provider: provider, Logger: logger.Nop(), Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	plan := billingtest.CreatePlan(t, conn)
	owner := uuid.New()

	res, err := svc.StartCheckout(context.Background(), owner, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "sub_checkout", res.ProviderSubscriptionID)
	assert.Equal(t, "https://rzp.io/i/abc", res.ShortURL)

	require.Len(t, provider.calls, 1)
	assert.Equal(t, plan.ProviderPlanID, provider.calls[0].PlanID)
	assert.Equal(t, 120, provider.calls[0].TotalCount)
	assert.Equal(t, owner.String(), provider.calls[0].Notes["owner_id"])

	stored := billingtest.ReloadSubscription(t, conn, res.SubscriptionID)
	assert.Equal(t, enums.SubscriptionStatusCreated, stored.Status)
	require.NotNil(t, stored.ProviderSubscriptionID)
	assert.Equal(t, "sub_checkout", *stored.ProviderSubscriptionID)
}

func TestStartCheckoutReusesPendingRow(t *testing.T) {
	provider := &fakeCreator{err: pkgerrors.New(pkgerrors.CodeDependency, "provider down")}
	conn := billingtest.NewDB(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(conn), Provider: provider, Logger: logger.Nop(), Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	plan := billingtest.CreatePlan(t, conn)
	owner := uuid.New()

	_, err = svc.StartCheckout(context.Background(), owner, plan.ID)
	require.Error(t, err)
	_, err = svc.StartCheckout(context.Background(), owner, plan.ID)
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.Subscription{}).Where("owner_id = ?", owner).Count(&count).Error)
	assert.EqualValues(t, 1, count, "failed checkouts reuse the pending row")
}

func TestStartCheckoutRejectsActiveOwner(t *testing.T) {
	provider := &fakeCreator{result: &razorpay.Subscription{ID: "sub_new"}}
	conn := billingtest.NewDB(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(conn), Provider: provider, Logger: logger.Nop(), Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	owner := uuid.New()
	existing := billingtest.CreateSubscription(t, conn,
		billingtest.WithOwner(owner),
		billingtest.WithStatus(enums.SubscriptionStatusActive),
		billingtest.WithProviderID("sub_live"),
		billingtest.WithPeriod(fixedNow.Add(-time.Hour), fixedNow.Add(time.Hour)),
	)

	_, err = svc.StartCheckout(context.Background(), owner, existing.PlanID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
	assert.Empty(t, provider.calls)
}

func TestStartCheckoutUnknownPlan(t *testing.T) {
	svc := newTestService(t, &fakeCreator{})
	_, err := svc.StartCheckout(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	noProvider := newTestService(t, nil)
	_, err = noProvider.StartCheckout(context.Background(), uuid.New(), uuid.New())
	require.True(t, errors.Is(err, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured")))
}

func TestListPaymentEventsPagesAndRejectsBadCursor(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	empty, err := svc.ListPaymentEvents(ctx, ListPaymentEventsParams{})
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.NextCursor)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.repo.AppendPaymentEvent(ctx, &models.PaymentEvent{
			EventType:  "refund.created",
			Payload:    `{"event":"refund.created"}`,
			ReceivedAt: fixedNow.Add(time.Duration(i) * time.Minute),
		}))
	}

	first, err := svc.ListPaymentEvents(ctx, ListPaymentEventsParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	rest, err := svc.ListPaymentEvents(ctx, ListPaymentEventsParams{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Items, 1)
	assert.Empty(t, rest.NextCursor)

	_, err = svc.ListPaymentEvents(ctx, ListPaymentEventsParams{Cursor: "%%%"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
