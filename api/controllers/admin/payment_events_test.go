package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	billingsvc "github.com/angelmondragon/gymdesk-billing/internal/billing"
	"github.com/angelmondragon/gymdesk-billing/internal/billing/billingtest"
	"github.com/angelmondragon/gymdesk-billing/internal/reconciler"
	razorpaywebhook "github.com/angelmondragon/gymdesk-billing/internal/webhooks/razorpay"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
	"github.com/angelmondragon/gymdesk-billing/pkg/razorpay"
	"github.com/angelmondragon/gymdesk-billing/pkg/types"
)

type activeFetcher struct{}

func (activeFetcher) FetchSubscription(ctx context.Context, id string) (*razorpay.Subscription, error) {
	start := time.Unix(1700000000, 0).UTC()
	end := time.Unix(1702600000, 0).UTC()
	return &razorpay.Subscription{ID: id, Status: "active", CurrentStart: &start, CurrentEnd: &end}, nil
}

type adminFixture struct {
	conn    *gorm.DB
	billing *billingsvc.Service
	webhook *razorpaywebhook.Service
	router  chi.Router
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	f := &adminFixture{conn: billingtest.NewDB(t)}
	repo := billingsvc.NewRepository(f.conn)
	var err error
	f.billing, err = billingsvc.NewService(billingsvc.ServiceParams{Repo: repo, Logger: logger.Nop()})
	require.NoError(t, err)
	rec, err := reconciler.New(reconciler.Params{Store: repo, Fetcher: activeFetcher{}, Logger: logger.Nop()})
	require.NoError(t, err)
	f.webhook, err = razorpaywebhook.NewService(razorpaywebhook.ServiceParams{Repo: repo, Reconciler: rec, Logger: logger.Nop()})
	require.NoError(t, err)

	f.router = chi.NewRouter()
	f.router.Get("/payment-events", PaymentEventsList(f.billing, logger.Nop()))
	f.router.Post("/payment-events/{eventId}/replay", PaymentEventReplay(f.webhook, logger.Nop()))
	return f
}

func (f *adminFixture) deliver(t *testing.T, body string) *razorpaywebhook.Receipt {
	t.Helper()
	event, err := razorpaywebhook.Parse([]byte(body))
	require.NoError(t, err)
	receipt, err := f.webhook.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	return receipt
}

func (f *adminFixture) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestPaymentEventReplayAppliesLateMatch(t *testing.T) {
	f := newAdminFixture(t)
	receipt := f.deliver(t, `{"event":"subscription.activated","payload":{"subscription":{"entity":{"id":"sub_late"}}}}`)
	require.Equal(t, enums.ReconcileOutcomeUnmatched, receipt.Outcome)

	sub := billingtest.CreateSubscription(t, f.conn, billingtest.WithProviderID("sub_late"))
	rec := f.do(http.MethodPost, "/payment-events/"+receipt.PaymentEventID.String()+"/replay")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data razorpaywebhook.Receipt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, enums.ReconcileOutcomeApplied, body.Data.Outcome)
	assert.Equal(t, 2, body.Data.Attempts)
	assert.Equal(t, enums.SubscriptionStatusActive, billingtest.ReloadSubscription(t, f.conn, sub.ID).Status)
}

func TestPaymentEventReplayErrors(t *testing.T) {
	f := newAdminFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/payment-events/not-a-uuid/replay").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/payment-events/"+uuid.NewString()+"/replay").Code)
}

func TestPaymentEventsListFiltersByOutcome(t *testing.T) {
	f := newAdminFixture(t)
	billingtest.CreateSubscription(t, f.conn, billingtest.WithProviderID("sub_1"))
	f.deliver(t, `{"event":"subscription.cancelled","payload":{"subscription":{"entity":{"id":"sub_1"}}}}`)
	f.deliver(t, `{"event":"refund.created","payload":{"payment":{"entity":{"id":"pay_1","amount":1000}}}}`)
	f.deliver(t, `{"event":"subscription.halted","payload":{"subscription":{"entity":{"id":"sub_ghost"}}}}`)

	rec := f.do(http.MethodGet, "/payment-events?outcome=no_subscription")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Data types.Page[paymentEventResponse] `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Items, 1)
	assert.Equal(t, "refund.created", body.Data.Items[0].EventType)
	require.NotNil(t, body.Data.Items[0].Amount)
	assert.Equal(t, int64(10), *body.Data.Items[0].Amount)
	assert.Nil(t, body.Data.Items[0].SubscriptionID)

	rec = f.do(http.MethodGet, "/payment-events?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	body.Data = types.Page[paymentEventResponse]{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data.Items, 2)
	assert.NotEmpty(t, body.Data.NextCursor)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/payment-events?outcome=bogus").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/payment-events?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/payment-events?cursor=%25%25").Code)
}
