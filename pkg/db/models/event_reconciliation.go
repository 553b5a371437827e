package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
)

// EventReconciliation tracks what was done with a PaymentEvent, keeping the
// event row itself immutable.
type EventReconciliation struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentEventID uuid.UUID              `gorm:"column:payment_event_id;type:uuid;not null;uniqueIndex"`
	SubscriptionID *uuid.UUID             `gorm:"column:subscription_id;type:uuid"`
	Outcome        enums.ReconcileOutcome `gorm:"column:outcome;type:reconcile_outcome;not null"`
	Attempts       int                    `gorm:"column:attempts;not null"`
	LastError      *string                `gorm:"column:last_error"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// PaymentEventWithOutcome is the admin listing projection.
type PaymentEventWithOutcome struct {
	PaymentEvent
	Outcome  *enums.ReconcileOutcome `gorm:"column:outcome"`
	Attempts *int                    `gorm:"column:attempts"`
}
