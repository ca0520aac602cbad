// Package profile defines the tenant profile storage contract shared by the
// Postgres and Firestore backends.
package profile

import (
	"context"
	"errors"
	"time"

	"github.com/scholarsite/scholarsite/internal/model"
)

// Storage errors.
var (
	ErrNotFound       = errors.New("profile not found")
	ErrExists         = errors.New("profile already exists")
	ErrSubdomainTaken = errors.New("subdomain already taken")
	ErrDomainTaken    = errors.New("custom domain already taken")
	ErrStorage        = errors.New("profile storage failure")
)

// Store reads and writes tenant profiles keyed by identity subject id.
// Implementations never touch records other than the one addressed.
type Store interface {
	Get(ctx context.Context, id string) (*model.Profile, error)
	Create(ctx context.Context, p *model.Profile) error
	Update(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error)
	FindBySubdomain(ctx context.Context, slug string) (*model.Profile, error)
	FindByCustomDomain(ctx context.Context, host string) (*model.Profile, error)
	SetCVPath(ctx context.Context, id, path string) error

	// UpsertSubscription replaces the whole subscription sub-record.
	// syncedAt is stored alongside, outside the record.
	UpsertSubscription(ctx context.Context, id string, sub model.Subscription, syncedAt time.Time) error
	FindIDBySubscription(ctx context.Context, subscriptionID string) (string, error)
	FindIDByCustomer(ctx context.Context, customerID string) (string, error)

	RecordBillingEvent(ctx context.Context, ev *model.BillingEvent) error
	Ping(ctx context.Context) error
}

// GetOrCreate returns the existing profile or creates p.
// A concurrent creator winning the race is handled by re-reading.
func GetOrCreate(ctx context.Context, s Store, p *model.Profile) (*model.Profile, bool, error) {
	existing, err := s.Get(ctx, p.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Subscription.Status == "" {
		p.Subscription.Status = model.SubscriptionStatusNone
	}
	if err := s.Create(ctx, p); err != nil {
		if errors.Is(err, ErrExists) {
			existing, err := s.Get(ctx, p.ID)
			return existing, false, err
		}
		return nil, false, err
	}
	return p, true, nil
}
