package model

import (
	"errors"
	"time"
)

// SubscriptionStatus is the stored subscription state of a tenant.
type SubscriptionStatus string

// Subscription statuses.
const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPending  SubscriptionStatus = "pending"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusNone     SubscriptionStatus = "none"
)

// Plan is a billing interval offered at checkout.
type Plan string

// Available plans.
const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// IsValidPlan checks whether a plan is offered.
func IsValidPlan(p Plan) bool {
	return p == PlanMonthly || p == PlanYearly
}

// ErrActiveWithoutIDs is returned when an active subscription lacks provider identifiers.
var ErrActiveWithoutIDs = errors.New("active subscription requires customer and subscription ids")

// Subscription is the subscription sub-record of a profile.
// Every field is derived from billing-provider state, so applying the same
// provider state twice yields an equal value.
type Subscription struct {
	Status             SubscriptionStatus `json:"status"`
	Plan               Plan               `json:"plan,omitempty"`
	CustomerID         string             `json:"customer_id,omitempty"`
	SubscriptionID     string             `json:"subscription_id,omitempty"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
}

// Validate enforces the active ⇒ ids-present invariant.
func (s Subscription) Validate() error {
	if s.Status == SubscriptionStatusActive && (s.CustomerID == "" || s.SubscriptionID == "") {
		return ErrActiveWithoutIDs
	}
	return nil
}

// Equal compares two records field by field, including period bounds by instant.
func (s Subscription) Equal(o Subscription) bool {
	return s.Status == o.Status &&
		s.Plan == o.Plan &&
		s.CustomerID == o.CustomerID &&
		s.SubscriptionID == o.SubscriptionID &&
		s.CancelAtPeriodEnd == o.CancelAtPeriodEnd &&
		timeEqual(s.CurrentPeriodStart, o.CurrentPeriodStart) &&
		timeEqual(s.CurrentPeriodEnd, o.CurrentPeriodEnd)
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// NormalizedStatus returns the status, treating the empty value as none.
func (s Subscription) NormalizedStatus() SubscriptionStatus {
	if s.Status == "" {
		return SubscriptionStatusNone
	}
	return s.Status
}
