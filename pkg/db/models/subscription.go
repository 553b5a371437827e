package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
)

// Subscription caches provider subscription state per owner. Status and period
// dates are only written by the reconciler.
type Subscription struct {
	ID                     uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID                uuid.UUID                `gorm:"column:owner_id;type:uuid;not null;index"`
	PlanID                 uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'created'"`
	ProviderCustomerID     *string                  `gorm:"column:provider_customer_id"`
	ProviderSubscriptionID *string                  `gorm:"column:provider_subscription_id;uniqueIndex"`
	CurrentStart           *time.Time               `gorm:"column:current_start"`
	CurrentEnd             *time.Time               `gorm:"column:current_end"`
	CancelAtPeriodEnd      bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	TrialEnd               *time.Time               `gorm:"column:trial_end"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
