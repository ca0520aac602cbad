package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/scholarsite/scholarsite/internal/model"
	"github.com/scholarsite/scholarsite/internal/profile"
)

var _ profile.Store = (*Repository)(nil)

const profileColumns = `
	id, display_name, email, COALESCE(orcid, ''), research_interests,
	COALESCE(subdomain, ''), COALESCE(custom_domain, ''), COALESCE(theme, ''), COALESCE(accent_color, ''),
	COALESCE(cv_path, ''),
	subscription_status, COALESCE(subscription_plan, ''), COALESCE(stripe_customer_id, ''),
	COALESCE(stripe_subscription_id, ''), current_period_start, current_period_end, cancel_at_period_end,
	created_at, updated_at
`

// Get retrieves a profile by its identity subject id.
func (r *Repository) Get(ctx context.Context, id string) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return r.getOne(ctx, "get profile", query, id)
}

// FindBySubdomain retrieves the profile owning a site slug.
func (r *Repository) FindBySubdomain(ctx context.Context, slug string) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE subdomain = $1`
	return r.getOne(ctx, "find profile by subdomain", query, slug)
}

// FindByCustomDomain retrieves the profile owning a premium domain.
func (r *Repository) FindByCustomDomain(ctx context.Context, host string) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE custom_domain = $1`
	return r.getOne(ctx, "find profile by custom domain", query, host)
}

func (r *Repository) getOne(ctx context.Context, op, query string, arg any) (*model.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, profile.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to %s: %v", profile.ErrStorage, op, err)
	}
	return p, nil
}

// Create inserts a new profile.
func (r *Repository) Create(ctx context.Context, p *model.Profile) error {
	query := `
		INSERT INTO profiles (
			id, display_name, email, orcid, research_interests,
			subdomain, custom_domain, theme, accent_color, cv_path,
			subscription_status, created_at, updated_at
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13)
	`

	status := p.Subscription.NormalizedStatus()
	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.DisplayName,
		p.Email,
		p.ORCID,
		pq.Array(nonNil(p.ResearchInterests)),
		p.Settings.Subdomain,
		p.Settings.CustomDomain,
		p.Settings.Theme,
		p.Settings.AccentColor,
		p.CVPath,
		string(status),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("create profile", err)
	}
	return nil
}

// Update applies a partial edit inside a row-locking transaction.
func (r *Repository) Update(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error) {
	var updated *model.Profile

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		update.Apply(current)
		current.UpdatedAt = time.Now().UTC()

		query := `
			UPDATE profiles
			SET display_name = $2, orcid = NULLIF($3, ''), research_interests = $4,
			    subdomain = NULLIF($5, ''), custom_domain = NULLIF($6, ''),
			    theme = NULLIF($7, ''), accent_color = NULLIF($8, ''), updated_at = $9
			WHERE id = $1
		`
		if _, err := tx.Exec(ctx, query,
			id,
			current.DisplayName,
			current.ORCID,
			pq.Array(nonNil(current.ResearchInterests)),
			current.Settings.Subdomain,
			current.Settings.CustomDomain,
			current.Settings.Theme,
			current.Settings.AccentColor,
			current.UpdatedAt,
		); err != nil {
			return err
		}

		updated = current
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, profile.ErrNotFound
		}
		return nil, mapWriteError("update profile", err)
	}
	return updated, nil
}

// SetCVPath records or clears the stored CV object path.
func (r *Repository) SetCVPath(ctx context.Context, id, path string) error {
	query := `UPDATE profiles SET cv_path = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, path)
	if err != nil {
		return fmt.Errorf("%w: failed to set cv path: %v", profile.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound
	}
	return nil
}

// UpsertSubscription replaces the subscription columns of a profile.
// syncedAt lands in subscription_synced_at, outside the record.
func (r *Repository) UpsertSubscription(ctx context.Context, id string, sub model.Subscription, syncedAt time.Time) error {
	query := `
		UPDATE profiles
		SET subscription_status = $2,
		    subscription_plan = NULLIF($3, ''),
		    stripe_customer_id = NULLIF($4, ''),
		    stripe_subscription_id = NULLIF($5, ''),
		    current_period_start = $6,
		    current_period_end = $7,
		    cancel_at_period_end = $8,
		    subscription_synced_at = $9
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		id,
		string(sub.NormalizedStatus()),
		string(sub.Plan),
		sub.CustomerID,
		sub.SubscriptionID,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		syncedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert subscription: %v", profile.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound
	}
	return nil
}

// FindIDBySubscription returns the tenant owning a provider subscription.
func (r *Repository) FindIDBySubscription(ctx context.Context, subscriptionID string) (string, error) {
	return r.findID(ctx, `SELECT id FROM profiles WHERE stripe_subscription_id = $1 LIMIT 1`, subscriptionID)
}

// FindIDByCustomer returns the tenant owning a provider customer.
func (r *Repository) FindIDByCustomer(ctx context.Context, customerID string) (string, error) {
	return r.findID(ctx, `SELECT id FROM profiles WHERE stripe_customer_id = $1 ORDER BY updated_at DESC LIMIT 1`, customerID)
}

func (r *Repository) findID(ctx context.Context, query, arg string) (string, error) {
	var id string
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", profile.ErrNotFound
		}
		return "", fmt.Errorf("%w: failed to find profile id: %v", profile.ErrStorage, err)
	}
	return id, nil
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var (
		p         model.Profile
		interests []string
		status    string
		plan      string
	)

	err := row.Scan(
		&p.ID,
		&p.DisplayName,
		&p.Email,
		&p.ORCID,
		pq.Array(&interests),
		&p.Settings.Subdomain,
		&p.Settings.CustomDomain,
		&p.Settings.Theme,
		&p.Settings.AccentColor,
		&p.CVPath,
		&status,
		&plan,
		&p.Subscription.CustomerID,
		&p.Subscription.SubscriptionID,
		&p.Subscription.CurrentPeriodStart,
		&p.Subscription.CurrentPeriodEnd,
		&p.Subscription.CancelAtPeriodEnd,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ResearchInterests = interests
	p.Subscription.Status = model.SubscriptionStatus(status)
	p.Subscription.Plan = model.Plan(plan)
	utc(p.Subscription.CurrentPeriodStart)
	utc(p.Subscription.CurrentPeriodEnd)
	return &p, nil
}

func utc(t *time.Time) {
	if t != nil {
		*t = t.UTC()
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func mapWriteError(op string, err error) error {
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case "profiles_pkey":
			return profile.ErrExists
		case "profiles_subdomain_key":
			return profile.ErrSubdomainTaken
		case "profiles_custom_domain_key":
			return profile.ErrDomainTaken
		}
	}
	return fmt.Errorf("%w: failed to %s: %v", profile.ErrStorage, op, err)
}
