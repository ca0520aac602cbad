package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scholarsite/scholarsite/internal/model"
)

func strPtr(s string) *string { return &s }

func TestGetOrCreate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemory()

	p, created, err := GetOrCreate(ctx, store, &model.Profile{ID: "u1", Email: "jane@example.com"})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if !created {
		t.Error("expected profile to be created")
	}
	if p.Subscription.Status != model.SubscriptionStatusNone {
		t.Errorf("status = %q, want none", p.Subscription.Status)
	}

	again, created, err := GetOrCreate(ctx, store, &model.Profile{ID: "u1", Email: "other@example.com"})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if created {
		t.Error("expected existing profile to be returned")
	}
	if again.Email != "jane@example.com" {
		t.Errorf("email = %q, want the original", again.Email)
	}
}

func TestMemory_UniqueSiteSettings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemory()
	_ = store.Create(ctx, &model.Profile{ID: "u1", Settings: model.SiteSettings{Subdomain: "jane", CustomDomain: "jane.com"}})
	_ = store.Create(ctx, &model.Profile{ID: "u2"})

	if _, err := store.Update(ctx, "u2", model.ProfileUpdate{Subdomain: strPtr("jane")}); !errors.Is(err, ErrSubdomainTaken) {
		t.Errorf("Update(subdomain) error = %v, want ErrSubdomainTaken", err)
	}
	if _, err := store.Update(ctx, "u2", model.ProfileUpdate{CustomDomain: strPtr("jane.com")}); !errors.Is(err, ErrDomainTaken) {
		t.Errorf("Update(domain) error = %v, want ErrDomainTaken", err)
	}
	if _, err := store.Update(ctx, "u1", model.ProfileUpdate{Subdomain: strPtr("jane")}); err != nil {
		t.Errorf("re-saving own subdomain should succeed, got %v", err)
	}
}

func TestMemory_SubscriptionLookups(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemory()
	sub := model.Subscription{Status: model.SubscriptionStatusActive, CustomerID: "cus_1", SubscriptionID: "sub_1"}

	if err := store.UpsertSubscription(ctx, "u1", sub, time.Now()); err != nil {
		t.Fatalf("UpsertSubscription() error = %v", err)
	}

	if id, err := store.FindIDBySubscription(ctx, "sub_1"); err != nil || id != "u1" {
		t.Errorf("FindIDBySubscription() = %q, %v", id, err)
	}
	if id, err := store.FindIDByCustomer(ctx, "cus_1"); err != nil || id != "u1" {
		t.Errorf("FindIDByCustomer() = %q, %v", id, err)
	}
	if _, err := store.FindIDByCustomer(ctx, "cus_2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindIDByCustomer(unknown) error = %v, want ErrNotFound", err)
	}
}
