package billing

import (
	"time"

	"github.com/angelmondragon/gymdesk-billing/pkg/db/models"
	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
)

// Entitlement is the access decision for an owner plus the fields it was derived from.
type Entitlement struct {
	Entitled         bool                      `json:"entitled"`
	Status           *enums.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd *time.Time                `json:"current_period_end"`
	TrialEnd         *time.Time                `json:"trial_end"`
}

// IsActiveAt decides access from locally stored state only. A running trial
// wins over status; otherwise the row must be active and inside its period.
func IsActiveAt(sub *models.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	if sub.TrialEnd != nil && now.Before(*sub.TrialEnd) {
		return true
	}
	if sub.Status != enums.SubscriptionStatusActive {
		return false
	}
	if sub.CurrentEnd != nil && now.After(*sub.CurrentEnd) {
		return false
	}
	return true
}

func entitlementFor(sub *models.Subscription, now time.Time) Entitlement {
	if sub == nil {
		return Entitlement{}
	}
	status := sub.Status
	return Entitlement{
		Entitled:         IsActiveAt(sub, now),
		Status:           &status,
		CurrentPeriodEnd: sub.CurrentEnd,
		TrialEnd:         sub.TrialEnd,
	}
}
