package enums

import "fmt"

// ReconcileOutcome records what the reconciler did with a logged payment event.
type ReconcileOutcome string

const (
	// ReconcileOutcomeApplied means status and period dates were written.
	ReconcileOutcomeApplied ReconcileOutcome = "applied"
	// ReconcileOutcomeStatusOnly means enrichment failed and only the status moved.
	ReconcileOutcomeStatusOnly     ReconcileOutcome = "status_only"
	ReconcileOutcomeIgnored        ReconcileOutcome = "ignored"
	ReconcileOutcomeUnmatched      ReconcileOutcome = "unmatched"
	ReconcileOutcomeNoSubscription ReconcileOutcome = "no_subscription"
	ReconcileOutcomeSuperseded     ReconcileOutcome = "superseded"
)

var validReconcileOutcomes = []ReconcileOutcome{
	ReconcileOutcomeApplied,
	ReconcileOutcomeStatusOnly,
	ReconcileOutcomeIgnored,
	ReconcileOutcomeUnmatched,
	ReconcileOutcomeNoSubscription,
	ReconcileOutcomeSuperseded,
}

// String implements fmt.Stringer.
func (o ReconcileOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is known.
func (o ReconcileOutcome) IsValid() bool {
	for _, candidate := range validReconcileOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// NeedsReplay reports whether the replay job should pick the event up again.
func (o ReconcileOutcome) NeedsReplay() bool {
	return o == ReconcileOutcomeStatusOnly || o == ReconcileOutcomeUnmatched
}

// ParseReconcileOutcome converts raw input into a ReconcileOutcome.
func ParseReconcileOutcome(value string) (ReconcileOutcome, error) {
	for _, candidate := range validReconcileOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reconcile outcome %q", value)
}
