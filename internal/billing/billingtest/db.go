// Package billingtest provides an in-memory SQLite schema and fixtures for
// billing tests.
package billingtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/gymdesk-billing/pkg/db/models"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
)

var schema = []string{`
CREATE TABLE plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  interval TEXT NOT NULL,
  price NUMERIC NOT NULL,
  provider_plan_id TEXT NOT NULL UNIQUE,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (name, interval)
);`, `
CREATE TABLE subscriptions (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  plan_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'created',
  provider_customer_id TEXT,
  provider_subscription_id TEXT UNIQUE,
  current_start DATETIME,
  current_end DATETIME,
  cancel_at_period_end INTEGER NOT NULL DEFAULT 0,
  trial_end DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE payment_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  provider_event_id TEXT,
  subscription_id TEXT REFERENCES subscriptions(id) ON DELETE CASCADE,
  provider_subscription_id TEXT,
  provider_payment_id TEXT,
  provider_invoice_id TEXT,
  amount INTEGER CHECK (amount >= 0),
  payload TEXT NOT NULL,
  received_at DATETIME NOT NULL
);`, `
CREATE TABLE event_reconciliations (
  id TEXT PRIMARY KEY,
  payment_event_id TEXT NOT NULL UNIQUE REFERENCES payment_events(id) ON DELETE CASCADE,
  subscription_id TEXT,
  outcome TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 1,
  last_error TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
}

// NewDB opens an isolated in-memory database with the billing schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// CreatePlan inserts an active monthly plan.
func CreatePlan(t *testing.T, conn *gorm.DB) *models.Plan {
	t.Helper()
	plan := &models.Plan{
		ID:             uuid.New(),
		Name:           "Gym Pro " + uuid.NewString()[:8],
		Interval:       enums.BillingIntervalMonthly,
		Price:          decimal.RequireFromString("1499.00"),
		ProviderPlanID: "plan_" + uuid.NewString()[:8],
		IsActive:       true,
	}
	require.NoError(t, conn.Create(plan).Error)
	return plan
}

// SubscriptionOption mutates a fixture before insert.
type SubscriptionOption func(*models.Subscription)

func WithProviderID(id string) SubscriptionOption {
	return func(s *models.Subscription) { s.ProviderSubscriptionID = &id }
}

func WithStatus(status enums.SubscriptionStatus) SubscriptionOption {
	return func(s *models.Subscription) { s.Status = status }
}

func WithPeriod(start, end time.Time) SubscriptionOption {
	return func(s *models.Subscription) {
		start, end = start.UTC(), end.UTC()
		s.CurrentStart = &start
		s.CurrentEnd = &end
	}
}

func WithCustomerID(id string) SubscriptionOption {
	return func(s *models.Subscription) { s.ProviderCustomerID = &id }
}

func WithOwner(ownerID uuid.UUID) SubscriptionOption {
	return func(s *models.Subscription) { s.OwnerID = ownerID }
}

func WithCreatedAt(at time.Time) SubscriptionOption {
	return func(s *models.Subscription) { s.CreatedAt = at.UTC() }
}

// CreateSubscription inserts a subscription on a fresh plan.
func CreateSubscription(t *testing.T, conn *gorm.DB, opts ...SubscriptionOption) *models.Subscription {
	t.Helper()
	plan := CreatePlan(t, conn)
	sub := &models.Subscription{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		PlanID:  plan.ID,
		Status:  enums.SubscriptionStatusCreated,
	}
	for _, opt := range opts {
		opt(sub)
	}
	require.NoError(t, conn.Create(sub).Error)
	return sub
}

// ReloadSubscription reads the row back from the database.
func ReloadSubscription(t *testing.T, conn *gorm.DB, id uuid.UUID) *models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, conn.Where("id = ?", id).First(&sub).Error)
	return &sub
}

// CountPaymentEvents counts audit rows, optionally filtered by subscription link.
func CountPaymentEvents(t *testing.T, conn *gorm.DB, where string, args ...any) int64 {
	t.Helper()
	var count int64
	query := conn.Model(&models.PaymentEvent{})
	if where != "" {
		query = query.Where(where, args...)
	}
	require.NoError(t, query.Count(&count).Error)
	return count
}
