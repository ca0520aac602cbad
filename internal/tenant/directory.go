package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scholarsite/scholarsite/internal/profile"
)

// ErrNoTenant is returned when no tenant owns a custom domain.
var ErrNoTenant = errors.New("no tenant for domain")

// DomainCache caches custom domain lookups.
type DomainCache interface {
	GetDomainTenant(ctx context.Context, host string) (string, bool, error)
	SetDomainTenant(ctx context.Context, host, tenantID string) error
	SetDomainMissing(ctx context.Context, host string) error
	DeleteDomain(ctx context.Context, host string) error
}

// Directory resolves premium custom domains to tenant ids.
type Directory struct {
	store  profile.Store
	cache  DomainCache
	logger *slog.Logger
}

// NewDirectory creates a Directory. cache may be nil.
func NewDirectory(store profile.Store, cache DomainCache, logger *slog.Logger) *Directory {
	return &Directory{store: store, cache: cache, logger: logger.With("component", "tenant_directory")}
}

// LookupCustomDomain returns the tenant id owning host.
// Cache errors fall through to the store.
func (d *Directory) LookupCustomDomain(ctx context.Context, host string) (string, error) {
	host = normalizeHost(host)

	if d.cache != nil {
		id, found, err := d.cache.GetDomainTenant(ctx, host)
		switch {
		case err == nil && found:
			return id, nil
		case err == nil:
			return "", ErrNoTenant
		}
	}

	p, err := d.store.FindByCustomDomain(ctx, host)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			d.remember(ctx, host, "")
			return "", ErrNoTenant
		}
		return "", fmt.Errorf("lookup custom domain: %w", err)
	}

	d.remember(ctx, host, p.ID)
	return p.ID, nil
}

// Invalidate drops cached lookups for host, used after a tenant changes its domain.
func (d *Directory) Invalidate(ctx context.Context, host string) {
	if d.cache == nil || host == "" {
		return
	}
	if err := d.cache.DeleteDomain(ctx, normalizeHost(host)); err != nil {
		d.logger.Warn("failed to invalidate domain cache", "host", host, "error", err)
	}
}

func (d *Directory) remember(ctx context.Context, host, tenantID string) {
	if d.cache == nil {
		return
	}
	var err error
	if tenantID == "" {
		err = d.cache.SetDomainMissing(ctx, host)
	} else {
		err = d.cache.SetDomainTenant(ctx, host, tenantID)
	}
	if err != nil {
		d.logger.Warn("failed to cache domain lookup", "host", host, "error", err)
	}
}
