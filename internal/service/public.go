package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/scholarsite/scholarsite/internal/model"
	"github.com/scholarsite/scholarsite/internal/profile"
	"github.com/scholarsite/scholarsite/internal/tenant"
)

// Site is the public payload of a tenant site. Degraded is set when
// publications could not be fetched.
type Site struct {
	Profile      model.PublicProfile `json:"profile"`
	Publications []model.Publication `json:"publications"`
	Degraded     bool                `json:"degraded,omitempty"`
}

// PublicSite loads the site for a routed request. Only tenants with an
// active subscription are served.
func (s *SiteService) PublicSite(ctx context.Context, route tenant.Route) (*Site, error) {
	p, err := s.tenantFor(ctx, route)
	if err != nil {
		return nil, err
	}
	if !p.IsPublished() {
		return nil, ErrSiteNotFound
	}

	site := &Site{
		Profile:      p.ToPublic(),
		Publications: []model.Publication{},
	}
	if p.ORCID == "" {
		return site, nil
	}

	pubs, err := s.publications(ctx, p.ORCID)
	if err != nil {
		s.logger.Warn("publications unavailable",
			slog.String("tenant_id", p.ID),
			slog.String("error", err.Error()),
		)
		site.Degraded = true
		return site, nil
	}
	site.Publications = pubs
	return site, nil
}

func (s *SiteService) tenantFor(ctx context.Context, route tenant.Route) (*model.Profile, error) {
	var (
		p   *model.Profile
		err error
	)
	switch {
	case route.TenantID != "":
		p, err = s.store.FindBySubdomain(ctx, route.TenantID)
	case route.IsPremium:
		var id string
		id, err = s.directory.LookupCustomDomain(ctx, route.Hostname)
		if errors.Is(err, tenant.ErrNoTenant) {
			return nil, ErrSiteNotFound
		}
		if err == nil {
			p, err = s.store.Get(ctx, id)
		}
	default:
		return nil, ErrNoTenant
	}

	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, ErrSiteNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *SiteService) publications(ctx context.Context, orcid string) ([]model.Publication, error) {
	author, err := s.source.AuthorByORCID(ctx, orcid)
	if err != nil {
		return nil, err
	}
	page, err := s.source.ListWorks(ctx, author.ID, 1)
	if err != nil {
		return nil, err
	}
	return page.Publications, nil
}
