package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gymdesk-billing/internal/billing"
	"github.com/angelmondragon/gymdesk-billing/internal/billing/billingtest"
	"github.com/angelmondragon/gymdesk-billing/internal/reconciler"
	razorpaywebhook "github.com/angelmondragon/gymdesk-billing/internal/webhooks/razorpay"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
	"github.com/angelmondragon/gymdesk-billing/pkg/razorpay"
)

const testSecret = "whsec_test"

type stubFetcher struct {
	calls int
}

func (s *stubFetcher) FetchSubscription(ctx context.Context, id string) (*razorpay.Subscription, error) {
	s.calls++
	start := time.Unix(1700000000, 0).UTC()
	end := time.Unix(1702600000, 0).UTC()
	return &razorpay.Subscription{ID: id, Status: "active", CurrentStart: &start, CurrentEnd: &end}, nil
}

type inMemoryStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{keys: map[string]struct{}{}}
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

type endToEnd struct {
	conn    *gorm.DB
	fetcher *stubFetcher
	store   *inMemoryStore
	handler http.HandlerFunc
}

func newEndToEnd(t *testing.T) *endToEnd {
	t.Helper()
	e := &endToEnd{conn: billingtest.NewDB(t), fetcher: &stubFetcher{}, store: newInMemoryStore()}
	repo := billing.NewRepository(e.conn)
	rec, err := reconciler.New(reconciler.Params{Store: repo, Fetcher: e.fetcher, Logger: logger.Nop()})
	require.NoError(t, err)
	svc, err := razorpaywebhook.NewService(razorpaywebhook.ServiceParams{Repo: repo, Reconciler: rec, Logger: logger.Nop()})
	require.NoError(t, err)
	guard, err := razorpaywebhook.NewIdempotencyGuard(e.store, time.Minute)
	require.NoError(t, err)
	e.handler = RazorpayWebhook(RazorpayWebhookParams{
		Service:      svc,
		Guard:        guard,
		Secret:       testSecret,
		MaxBodyBytes: 4096,
		Logger:       logger.Nop(),
	})
	return e
}

func (e *endToEnd) post(body []byte, signature, deliveryID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(razorpaywebhook.SignatureHeader, signature)
	}
	if deliveryID != "" {
		req.Header.Set(razorpaywebhook.EventIDHeader, deliveryID)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

const activatedBody = `{"event":"subscription.activated","payload":{"subscription":{"entity":{"id":"sub_123"}}}}`

func TestRazorpayWebhookActivatesMatchedSubscription(t *testing.T) {
	e := newEndToEnd(t)
	sub := billingtest.CreateSubscription(t, e.conn, billingtest.WithProviderID("sub_123"))

	body := []byte(activatedBody)
	rec := e.post(body, razorpaywebhook.Sign(body, testSecret), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	got := billingtest.ReloadSubscription(t, e.conn, sub.ID)
	assert.Equal(t, enums.SubscriptionStatusActive, got.Status)
	require.NotNil(t, got.CurrentStart)
	require.NotNil(t, got.CurrentEnd)
	assert.True(t, got.CurrentStart.Equal(time.Unix(1700000000, 0)))
	assert.True(t, got.CurrentEnd.Equal(time.Unix(1702600000, 0)))
	assert.Equal(t, int64(1), billingtest.CountPaymentEvents(t, e.conn, "event_type = ? AND subscription_id = ?", "subscription.activated", sub.ID))
}

func TestRazorpayWebhookTamperedSignatureChangesNothing(t *testing.T) {
	e := newEndToEnd(t)
	sub := billingtest.CreateSubscription(t, e.conn, billingtest.WithProviderID("sub_123"))

	body := []byte(activatedBody)
	signature := razorpaywebhook.Sign(body, testSecret)
	tampered := []byte(`{"event":"subscription.activated","payload":{"subscription":{"entity":{"id":"sub_124"}}}}`)
	rec := e.post(tampered, signature, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Zero(t, billingtest.CountPaymentEvents(t, e.conn, ""))
	assert.Equal(t, enums.SubscriptionStatusCreated, billingtest.ReloadSubscription(t, e.conn, sub.ID).Status)
	assert.Zero(t, e.fetcher.calls)
}

func TestRazorpayWebhookLogsRefundUnlinked(t *testing.T) {
	e := newEndToEnd(t)

	body := []byte(`{"event":"refund.created","payload":{"payment":{"entity":{"id":"pay_9","amount":50000}}}}`)
	rec := e.post(body, razorpaywebhook.Sign(body, testSecret), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), billingtest.CountPaymentEvents(t, e.conn, "subscription_id IS NULL AND event_type = ?", "refund.created"))
	assert.Equal(t, int64(1), billingtest.CountPaymentEvents(t, e.conn, "provider_payment_id = ? AND amount = ?", "pay_9", 500))
}

func TestRazorpayWebhookRejectsTransportFailures(t *testing.T) {
	e := newEndToEnd(t)
	valid := []byte(activatedBody)
	malformed := []byte(`{"event":`)
	oversize := bytes.Repeat([]byte("a"), 5000)

	tests := []struct {
		name      string
		body      []byte
		signature string
	}{
		{name: "missing signature", body: valid},
		{name: "wrong secret", body: valid, signature: razorpaywebhook.Sign(valid, "other")},
		{name: "malformed json", body: malformed, signature: razorpaywebhook.Sign(malformed, testSecret)},
		{name: "oversize body", body: oversize, signature: razorpaywebhook.Sign(oversize, testSecret)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.post(tt.body, tt.signature, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, rec.Body.String())
		})
	}
	assert.Zero(t, billingtest.CountPaymentEvents(t, e.conn, ""))
}

func TestRazorpayWebhookSkipsDuplicateDelivery(t *testing.T) {
	e := newEndToEnd(t)
	billingtest.CreateSubscription(t, e.conn, billingtest.WithProviderID("sub_123"))

	body := []byte(activatedBody)
	signature := razorpaywebhook.Sign(body, testSecret)
	require.Equal(t, http.StatusOK, e.post(body, signature, "evt_1").Code)
	require.Equal(t, http.StatusOK, e.post(body, signature, "evt_1").Code)

	assert.Equal(t, int64(1), billingtest.CountPaymentEvents(t, e.conn, "provider_event_id = ?", "evt_1"))
	assert.Equal(t, 1, e.fetcher.calls)
}

type failingService struct {
	err   error
	calls int
}

func (f *failingService) HandleEvent(ctx context.Context, event *razorpaywebhook.Event) (*razorpaywebhook.Receipt, error) {
	f.calls++
	return nil, f.err
}

func TestRazorpayWebhookRetryableFailureReleasesMark(t *testing.T) {
	store := newInMemoryStore()
	guard, err := razorpaywebhook.NewIdempotencyGuard(store, time.Minute)
	require.NoError(t, err)
	svc := &failingService{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "append payment event")}
	handler := RazorpayWebhook(RazorpayWebhookParams{Service: svc, Guard: guard, Secret: testSecret, Logger: logger.Nop()})

	body := []byte(activatedBody)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", bytes.NewReader(body))
		req.Header.Set(razorpaywebhook.SignatureHeader, razorpaywebhook.Sign(body, testSecret))
		req.Header.Set(razorpaywebhook.EventIDHeader, "evt_2")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
	assert.Equal(t, 2, svc.calls, "redelivery is processed after a retryable failure")
	assert.Empty(t, store.keys)
}
