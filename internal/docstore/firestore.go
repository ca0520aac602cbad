// Package docstore implements profile storage on Cloud Firestore.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/scholarsite/scholarsite/internal/model"
	"github.com/scholarsite/scholarsite/internal/profile"
)

// Collection names.
const (
	ProfilesCollection      = "profiles"
	BillingEventsCollection = "billingEvents"
)

var _ profile.Store = (*Store)(nil)

// Store keeps one document per profile, keyed by identity subject id.
type Store struct {
	client *firestore.Client
}

// New wraps a Firestore client. The caller owns the client.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) profiles() *firestore.CollectionRef {
	return s.client.Collection(ProfilesCollection)
}

// Get retrieves a profile document.
func (s *Store) Get(ctx context.Context, id string) (*model.Profile, error) {
	snap, err := s.profiles().Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError("get profile", err)
	}
	return decode(snap)
}

// Create inserts a profile, enforcing slug and domain uniqueness in a transaction.
func (s *Store) Create(ctx context.Context, p *model.Profile) error {
	ref := s.profiles().Doc(p.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := s.checkUnique(tx, p.ID, p.Settings); err != nil {
			return err
		}
		return tx.Create(ref, toDoc(p))
	})
	return mapError("create profile", err)
}

// Update applies a partial edit.
func (s *Store) Update(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error) {
	ref := s.profiles().Doc(id)
	var updated *model.Profile

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := decode(snap)
		if err != nil {
			return err
		}

		update.Apply(current)
		if err := s.checkUnique(tx, id, current.Settings); err != nil {
			return err
		}
		current.UpdatedAt = time.Now().UTC()

		d := toDoc(current)
		if err := tx.Update(ref, []firestore.Update{
			{Path: "displayName", Value: d.DisplayName},
			{Path: "orcid", Value: d.ORCID},
			{Path: "researchInterests", Value: d.ResearchInterests},
			{Path: "settings", Value: d.Settings},
			{Path: "updatedAt", Value: d.UpdatedAt},
		}); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, mapError("update profile", err)
	}
	return updated, nil
}

func (s *Store) checkUnique(tx *firestore.Transaction, id string, settings model.SiteSettings) error {
	if settings.Subdomain != "" {
		taken, err := s.claimedByOther(tx, "settings.subdomain", settings.Subdomain, id)
		if err != nil {
			return err
		}
		if taken {
			return profile.ErrSubdomainTaken
		}
	}
	if settings.CustomDomain != "" {
		taken, err := s.claimedByOther(tx, "settings.customDomain", settings.CustomDomain, id)
		if err != nil {
			return err
		}
		if taken {
			return profile.ErrDomainTaken
		}
	}
	return nil
}

func (s *Store) claimedByOther(tx *firestore.Transaction, path, value, id string) (bool, error) {
	docs, err := tx.Documents(s.profiles().Where(path, "==", value).Limit(2)).GetAll()
	if err != nil {
		return false, err
	}
	for _, d := range docs {
		if d.Ref.ID != id {
			return true, nil
		}
	}
	return false, nil
}

// FindBySubdomain retrieves the profile owning a site slug.
func (s *Store) FindBySubdomain(ctx context.Context, slug string) (*model.Profile, error) {
	return s.findOne(ctx, "settings.subdomain", slug)
}

// FindByCustomDomain retrieves the profile owning a premium domain.
func (s *Store) FindByCustomDomain(ctx context.Context, host string) (*model.Profile, error) {
	return s.findOne(ctx, "settings.customDomain", host)
}

func (s *Store) findOne(ctx context.Context, path, value string) (*model.Profile, error) {
	docs, err := s.profiles().Where(path, "==", value).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError("query profiles", err)
	}
	if len(docs) == 0 {
		return nil, profile.ErrNotFound
	}
	return decode(docs[0])
}

// SetCVPath records or clears the stored CV object path.
func (s *Store) SetCVPath(ctx context.Context, id, path string) error {
	var value any = path
	if path == "" {
		value = firestore.Delete
	}
	_, err := s.profiles().Doc(id).Update(ctx, []firestore.Update{
		{Path: "cvPath", Value: value},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return mapError("set cv path", err)
}

// UpsertSubscription overwrites the subscription map of a profile document.
func (s *Store) UpsertSubscription(ctx context.Context, id string, sub model.Subscription, syncedAt time.Time) error {
	_, err := s.profiles().Doc(id).Update(ctx, []firestore.Update{
		{Path: "subscription", Value: toSubscriptionDoc(sub)},
		{Path: "subscriptionSyncedAt", Value: syncedAt},
	})
	return mapError("upsert subscription", err)
}

// FindIDBySubscription returns the tenant owning a provider subscription.
func (s *Store) FindIDBySubscription(ctx context.Context, subscriptionID string) (string, error) {
	return s.findID(ctx, "subscription.stripeSubscriptionId", subscriptionID)
}

// FindIDByCustomer returns the tenant owning a provider customer.
func (s *Store) FindIDByCustomer(ctx context.Context, customerID string) (string, error) {
	return s.findID(ctx, "subscription.stripeCustomerId", customerID)
}

func (s *Store) findID(ctx context.Context, path, value string) (string, error) {
	docs, err := s.profiles().Where(path, "==", value).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", mapError("query profiles", err)
	}
	if len(docs) == 0 {
		return "", profile.ErrNotFound
	}
	return docs[0].Ref.ID, nil
}

// RecordBillingEvent stores an audit entry under its ULID.
func (s *Store) RecordBillingEvent(ctx context.Context, ev *model.BillingEvent) error {
	_, err := s.client.Collection(BillingEventsCollection).Doc(ev.ID).Set(ctx, billingEventDoc{
		ProviderEventID: ev.ProviderEventID,
		Kind:            ev.Kind,
		TenantID:        ev.TenantID,
		SubscriptionID:  ev.SubscriptionID,
		Outcome:         string(ev.Outcome),
		Status:          string(ev.Status),
		ReceivedAt:      ev.ReceivedAt,
	})
	return mapError("record billing event", err)
}

// Ping reads a sentinel document; a missing document still proves connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection("_health").Doc("ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("%w: %v", profile.ErrStorage, err)
	}
	return nil
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, profile.ErrSubdomainTaken) || errors.Is(err, profile.ErrDomainTaken) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return profile.ErrNotFound
	case codes.AlreadyExists:
		return profile.ErrExists
	}
	return fmt.Errorf("%w: failed to %s: %v", profile.ErrStorage, op, err)
}
