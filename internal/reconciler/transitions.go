package reconciler

import "github.com/angelmondragon/gymdesk-billing/pkg/enums"

// Provider event types that move subscription state.
const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionResumed   = "subscription.resumed"
	EventSubscriptionHalted    = "subscription.halted"
	EventSubscriptionPaused    = "subscription.paused"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventSubscriptionCompleted = "subscription.completed"
)

// Transition is the absolute assignment an event type maps to. Enrich marks
// activation-class events that refresh period dates from the provider.
type Transition struct {
	Status enums.SubscriptionStatus
	Enrich bool
}

var transitions = map[string]Transition{
	EventSubscriptionActivated: {Status: enums.SubscriptionStatusActive, Enrich: true},
	EventSubscriptionCharged:   {Status: enums.SubscriptionStatusActive, Enrich: true},
	EventSubscriptionResumed:   {Status: enums.SubscriptionStatusActive, Enrich: true},
	EventSubscriptionHalted:    {Status: enums.SubscriptionStatusHalted},
	EventSubscriptionPaused:    {Status: enums.SubscriptionStatusHalted},
	EventSubscriptionCancelled: {Status: enums.SubscriptionStatusCancelled},
	EventSubscriptionCompleted: {Status: enums.SubscriptionStatusExpired},
}

// Lookup returns the transition for an event type. Unknown types report false
// and are acknowledged without a state change.
func Lookup(eventType string) (Transition, bool) {
	t, ok := transitions[eventType]
	return t, ok
}
