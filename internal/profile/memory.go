package profile

import (
	"context"
	"sync"
	"time"

	"github.com/scholarsite/scholarsite/internal/model"
)

// Memory is an in-process Store used by tests and local development.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]*model.Profile
	synced   map[string]time.Time
	events   []model.BillingEvent
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]*model.Profile),
		synced:   make(map[string]time.Time),
	}
}

func clone(p *model.Profile) *model.Profile {
	c := *p
	c.ResearchInterests = append([]string(nil), p.ResearchInterests...)
	return &c
}

// Get returns a copy of the profile.
func (m *Memory) Get(_ context.Context, id string) (*model.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(p), nil
}

// Create inserts a new profile.
func (m *Memory) Create(_ context.Context, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; ok {
		return ErrExists
	}
	if err := m.checkUniqueLocked(p.ID, p.Settings); err != nil {
		return err
	}
	m.profiles[p.ID] = clone(p)
	return nil
}

// Update applies a partial edit.
func (m *Memory) Update(_ context.Context, id string, update model.ProfileUpdate) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := clone(p)
	update.Apply(next)
	if err := m.checkUniqueLocked(id, next.Settings); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	m.profiles[id] = next
	return clone(next), nil
}

func (m *Memory) checkUniqueLocked(id string, s model.SiteSettings) error {
	for otherID, other := range m.profiles {
		if otherID == id {
			continue
		}
		if s.Subdomain != "" && other.Settings.Subdomain == s.Subdomain {
			return ErrSubdomainTaken
		}
		if s.CustomDomain != "" && other.Settings.CustomDomain == s.CustomDomain {
			return ErrDomainTaken
		}
	}
	return nil
}

// FindBySubdomain looks a profile up by its site slug.
func (m *Memory) FindBySubdomain(_ context.Context, slug string) (*model.Profile, error) {
	return m.find(func(p *model.Profile) bool { return p.Settings.Subdomain == slug })
}

// FindByCustomDomain looks a profile up by its premium domain.
func (m *Memory) FindByCustomDomain(_ context.Context, host string) (*model.Profile, error) {
	return m.find(func(p *model.Profile) bool { return p.Settings.CustomDomain == host })
}

func (m *Memory) find(match func(*model.Profile) bool) (*model.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.profiles {
		if match(p) {
			return clone(p), nil
		}
	}
	return nil, ErrNotFound
}

// SetCVPath records or clears the stored CV object path.
func (m *Memory) SetCVPath(_ context.Context, id, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return ErrNotFound
	}
	p.CVPath = path
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// UpsertSubscription replaces the subscription record, creating a bare profile if needed.
func (m *Memory) UpsertSubscription(_ context.Context, id string, sub model.Subscription, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		p = &model.Profile{ID: id, CreatedAt: syncedAt}
		m.profiles[id] = p
	}
	p.Subscription = sub
	p.UpdatedAt = syncedAt
	m.synced[id] = syncedAt
	return nil
}

// FindIDBySubscription returns the tenant owning a provider subscription.
func (m *Memory) FindIDBySubscription(_ context.Context, subscriptionID string) (string, error) {
	p, err := m.find(func(p *model.Profile) bool { return p.Subscription.SubscriptionID == subscriptionID })
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// FindIDByCustomer returns the tenant owning a provider customer.
func (m *Memory) FindIDByCustomer(_ context.Context, customerID string) (string, error) {
	p, err := m.find(func(p *model.Profile) bool { return p.Subscription.CustomerID == customerID })
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// RecordBillingEvent appends to the audit log.
func (m *Memory) RecordBillingEvent(_ context.Context, ev *model.BillingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

// BillingEvents returns a copy of the audit log.
func (m *Memory) BillingEvents() []model.BillingEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.BillingEvent(nil), m.events...)
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }
