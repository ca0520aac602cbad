package repository

import (
	"context"
	"fmt"

	"github.com/scholarsite/scholarsite/internal/model"
)

// RecordBillingEvent appends a webhook delivery to the audit log.
func (r *Repository) RecordBillingEvent(ctx context.Context, ev *model.BillingEvent) error {
	query := `
		INSERT INTO billing_events (id, provider_event_id, kind, tenant_id, subscription_id, outcome, status, received_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), $8)
	`

	_, err := r.pool.Exec(ctx, query,
		ev.ID,
		ev.ProviderEventID,
		ev.Kind,
		ev.TenantID,
		ev.SubscriptionID,
		string(ev.Outcome),
		string(ev.Status),
		ev.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record billing event: %w", err)
	}
	return nil
}

// ListBillingEvents returns the most recent audit entries for a tenant.
func (r *Repository) ListBillingEvents(ctx context.Context, tenantID string, limit int) ([]model.BillingEvent, error) {
	query := `
		SELECT id, provider_event_id, kind, COALESCE(tenant_id, ''), COALESCE(subscription_id, ''),
		       outcome, COALESCE(status, ''), received_at
		FROM billing_events
		WHERE tenant_id = $1
		ORDER BY received_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing events: %w", err)
	}
	defer rows.Close()

	var events []model.BillingEvent
	for rows.Next() {
		var (
			ev      model.BillingEvent
			outcome string
			status  string
		)
		if err := rows.Scan(&ev.ID, &ev.ProviderEventID, &ev.Kind, &ev.TenantID, &ev.SubscriptionID, &outcome, &status, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan billing event: %w", err)
		}
		ev.Outcome = model.BillingEventOutcome(outcome)
		ev.Status = model.SubscriptionStatus(status)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating billing events: %w", err)
	}
	return events, nil
}
