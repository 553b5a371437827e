package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEvent is the append-only audit record of an accepted webhook delivery.
// SubscriptionID is nil when no local subscription matched. Payload holds the
// body exactly as received so it can be replayed.
type PaymentEvent struct {
	ID                     uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType              string     `gorm:"column:event_type;not null"`
	ProviderEventID        *string    `gorm:"column:provider_event_id"`
	SubscriptionID         *uuid.UUID `gorm:"column:subscription_id;type:uuid;index"`
	ProviderSubscriptionID *string    `gorm:"column:provider_subscription_id;index"`
	ProviderPaymentID      *string    `gorm:"column:provider_payment_id"`
	ProviderInvoiceID      *string    `gorm:"column:provider_invoice_id"`
	Amount                 *int64     `gorm:"column:amount"`
	Payload                string     `gorm:"column:payload;type:text;not null"`
	ReceivedAt             time.Time  `gorm:"column:received_at;not null"`
}
