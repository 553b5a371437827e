package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubscriptionStatus(t *testing.T) {
	for _, status := range validSubscriptionStatuses {
		got, err := ParseSubscriptionStatus(status.String())
		require.NoError(t, err)
		assert.Equal(t, status, got)
	}
	_, err := ParseSubscriptionStatus("past_due")
	require.Error(t, err)
}

func TestSubscriptionStatusTerminal(t *testing.T) {
	assert.True(t, SubscriptionStatusCancelled.IsTerminal())
	assert.True(t, SubscriptionStatusExpired.IsTerminal())
	assert.False(t, SubscriptionStatusHalted.IsTerminal())
	assert.False(t, SubscriptionStatus("bogus").IsValid())
}

func TestBillingIntervalTotalCycles(t *testing.T) {
	assert.Equal(t, 120, BillingIntervalMonthly.TotalCycles())
	assert.Equal(t, 10, BillingIntervalYearly.TotalCycles())

	_, err := ParseBillingInterval("weekly")
	require.Error(t, err)
}

func TestReconcileOutcomeNeedsReplay(t *testing.T) {
	assert.True(t, ReconcileOutcomeStatusOnly.NeedsReplay())
	assert.True(t, ReconcileOutcomeUnmatched.NeedsReplay())
	assert.False(t, ReconcileOutcomeApplied.NeedsReplay())
	assert.False(t, ReconcileOutcomeSuperseded.NeedsReplay())
	assert.False(t, ReconcileOutcomeNoSubscription.NeedsReplay())

	got, err := ParseReconcileOutcome("ignored")
	require.NoError(t, err)
	assert.Equal(t, ReconcileOutcomeIgnored, got)
}

func TestParseActorRole(t *testing.T) {
	got, err := ParseActorRole("admin")
	require.NoError(t, err)
	assert.Equal(t, ActorRoleAdmin, got)
	_, err = ParseActorRole("root")
	require.Error(t, err)
}
