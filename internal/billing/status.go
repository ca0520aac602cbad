package billing

import (
	"time"

	"github.com/scholarsite/scholarsite/internal/model"
)

// MapStatus maps a provider subscription status onto the stored status.
func MapStatus(status string) model.SubscriptionStatus {
	switch status {
	case "active", "trialing":
		return model.SubscriptionStatusActive
	case "incomplete", "past_due", "unpaid", "paused":
		return model.SubscriptionStatusPending
	case "canceled", "incomplete_expired":
		return model.SubscriptionStatusCanceled
	default:
		return model.SubscriptionStatusNone
	}
}

// PlanFor derives the plan from the price's billing interval, falling back
// to the plan recorded in subscription metadata.
func PlanFor(interval, metadataPlan string) model.Plan {
	switch interval {
	case "month":
		return model.PlanMonthly
	case "year":
		return model.PlanYearly
	}
	if p := model.Plan(metadataPlan); model.IsValidPlan(p) {
		return p
	}
	return ""
}

// ToRecord converts provider state into the stored subscription record.
// The result depends only on provider fields, so equal provider state
// always yields an equal record.
func ToRecord(ps *ProviderSubscription) model.Subscription {
	return model.Subscription{
		Status:             MapStatus(ps.Status),
		Plan:               PlanFor(ps.Interval, ps.Metadata["plan"]),
		CustomerID:         ps.CustomerID,
		SubscriptionID:     ps.ID,
		CurrentPeriodStart: timePtr(ps.PeriodStart),
		CurrentPeriodEnd:   timePtr(ps.PeriodEnd),
		CancelAtPeriodEnd:  ps.CancelAtPeriodEnd,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
