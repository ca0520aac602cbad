package docstore

import (
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/scholarsite/scholarsite/internal/model"
)

type profileDoc struct {
	DisplayName          string          `firestore:"displayName"`
	Email                string          `firestore:"email"`
	ORCID                string          `firestore:"orcid"`
	ResearchInterests    []string        `firestore:"researchInterests"`
	Settings             settingsDoc     `firestore:"settings"`
	CVPath               string          `firestore:"cvPath,omitempty"`
	Subscription         subscriptionDoc `firestore:"subscription"`
	SubscriptionSyncedAt *time.Time      `firestore:"subscriptionSyncedAt,omitempty"`
	CreatedAt            time.Time       `firestore:"createdAt"`
	UpdatedAt            time.Time       `firestore:"updatedAt"`
}

type settingsDoc struct {
	Subdomain    string `firestore:"subdomain,omitempty"`
	CustomDomain string `firestore:"customDomain,omitempty"`
	Theme        string `firestore:"theme,omitempty"`
	AccentColor  string `firestore:"accentColor,omitempty"`
}

type subscriptionDoc struct {
	Status             string     `firestore:"status"`
	Plan               string     `firestore:"plan,omitempty"`
	CustomerID         string     `firestore:"stripeCustomerId,omitempty"`
	SubscriptionID     string     `firestore:"stripeSubscriptionId,omitempty"`
	CurrentPeriodStart *time.Time `firestore:"currentPeriodStart"`
	CurrentPeriodEnd   *time.Time `firestore:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool       `firestore:"cancelAtPeriodEnd"`
}

type billingEventDoc struct {
	ProviderEventID string    `firestore:"providerEventId"`
	Kind            string    `firestore:"kind"`
	TenantID        string    `firestore:"tenantId,omitempty"`
	SubscriptionID  string    `firestore:"subscriptionId,omitempty"`
	Outcome         string    `firestore:"outcome"`
	Status          string    `firestore:"status,omitempty"`
	ReceivedAt      time.Time `firestore:"receivedAt"`
}

func toDoc(p *model.Profile) profileDoc {
	interests := p.ResearchInterests
	if interests == nil {
		interests = []string{}
	}
	return profileDoc{
		DisplayName:       p.DisplayName,
		Email:             p.Email,
		ORCID:             p.ORCID,
		ResearchInterests: interests,
		Settings: settingsDoc{
			Subdomain:    p.Settings.Subdomain,
			CustomDomain: p.Settings.CustomDomain,
			Theme:        p.Settings.Theme,
			AccentColor:  p.Settings.AccentColor,
		},
		CVPath:       p.CVPath,
		Subscription: toSubscriptionDoc(p.Subscription),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func toSubscriptionDoc(s model.Subscription) subscriptionDoc {
	return subscriptionDoc{
		Status:             string(s.NormalizedStatus()),
		Plan:               string(s.Plan),
		CustomerID:         s.CustomerID,
		SubscriptionID:     s.SubscriptionID,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
}

func fromDoc(id string, d profileDoc) *model.Profile {
	return &model.Profile{
		ID:                id,
		DisplayName:       d.DisplayName,
		Email:             d.Email,
		ORCID:             d.ORCID,
		ResearchInterests: d.ResearchInterests,
		Settings: model.SiteSettings{
			Subdomain:    d.Settings.Subdomain,
			CustomDomain: d.Settings.CustomDomain,
			Theme:        d.Settings.Theme,
			AccentColor:  d.Settings.AccentColor,
		},
		CVPath: d.CVPath,
		Subscription: model.Subscription{
			Status:             model.SubscriptionStatus(d.Subscription.Status),
			Plan:               model.Plan(d.Subscription.Plan),
			CustomerID:         d.Subscription.CustomerID,
			SubscriptionID:     d.Subscription.SubscriptionID,
			CurrentPeriodStart: utc(d.Subscription.CurrentPeriodStart),
			CurrentPeriodEnd:   utc(d.Subscription.CurrentPeriodEnd),
			CancelAtPeriodEnd:  d.Subscription.CancelAtPeriodEnd,
		},
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func decode(snap *firestore.DocumentSnapshot) (*model.Profile, error) {
	var d profileDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", snap.Ref.ID, err)
	}
	return fromDoc(snap.Ref.ID, d), nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
