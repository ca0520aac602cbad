package model

import "time"

// BillingEventOutcome describes what the reconciler did with a delivery.
type BillingEventOutcome string

// Billing event outcomes.
const (
	BillingOutcomeApplied   BillingEventOutcome = "applied"
	BillingOutcomeIgnored   BillingEventOutcome = "ignored"
	BillingOutcomeUnmatched BillingEventOutcome = "unmatched"
	BillingOutcomePending   BillingEventOutcome = "pending"
)

// BillingEvent is an audit record of one handled billing-provider delivery.
// It is never consulted to decide whether to apply an event.
type BillingEvent struct {
	ID              string              `json:"id"`
	ProviderEventID string              `json:"provider_event_id"`
	Kind            string              `json:"kind"`
	TenantID        string              `json:"tenant_id,omitempty"`
	SubscriptionID  string              `json:"subscription_id,omitempty"`
	Outcome         BillingEventOutcome `json:"outcome"`
	Status          SubscriptionStatus  `json:"status,omitempty"`
	ReceivedAt      time.Time           `json:"received_at"`
}
