package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
)

// Plan is a catalog entry mapped to a provider plan. (name, interval) is unique.
type Plan struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string                `gorm:"column:name;not null"`
	Interval       enums.BillingInterval `gorm:"column:interval;type:billing_interval;not null"`
	Price          decimal.Decimal       `gorm:"column:price;type:numeric(12,2);not null"`
	ProviderPlanID string                `gorm:"column:provider_plan_id;not null;uniqueIndex"`
	IsActive       bool                  `gorm:"column:is_active;not null"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
