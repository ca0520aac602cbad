// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/scholarsite/scholarsite/internal/identity"
	"github.com/scholarsite/scholarsite/internal/model"
	"github.com/scholarsite/scholarsite/internal/openalex"
	"github.com/scholarsite/scholarsite/internal/profile"
	"github.com/scholarsite/scholarsite/internal/tenant"
)

// Service errors.
var (
	ErrProfileNotFound   = errors.New("profile not found")
	ErrSiteNotFound      = errors.New("site not found")
	ErrNoTenant          = errors.New("request is not for a tenant site")
	ErrSubdomainTaken    = errors.New("subdomain already taken")
	ErrDomainTaken       = errors.New("custom domain already taken")
	ErrPremiumRequired   = errors.New("custom domains require an active subscription")
	ErrPlatformDomain    = errors.New("custom domain cannot be on the platform domain")
	ErrCVStorageDisabled = errors.New("cv storage is not configured")
	ErrNoCV              = errors.New("no cv uploaded")
)

// UserLookup resolves identity-provider user records.
type UserLookup interface {
	LookupUser(ctx context.Context, uid string) (*identity.UserRecord, error)
}

// CVStore persists CV documents.
type CVStore interface {
	Put(ctx context.Context, userID string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
}

// SiteService owns profile edits and assembles public site payloads.
type SiteService struct {
	store     profile.Store
	resolver  *tenant.Resolver
	directory *tenant.Directory
	source    openalex.Source
	cvs       CVStore
	users     UserLookup
	logger    *slog.Logger
}

// SiteDeps are the collaborators of SiteService. CVs and Users may be nil.
type SiteDeps struct {
	Store     profile.Store
	Resolver  *tenant.Resolver
	Directory *tenant.Directory
	Source    openalex.Source
	CVs       CVStore
	Users     UserLookup
	Logger    *slog.Logger
}

// NewSiteService creates a SiteService.
func NewSiteService(deps SiteDeps) *SiteService {
	return &SiteService{
		store:     deps.Store,
		resolver:  deps.Resolver,
		directory: deps.Directory,
		source:    deps.Source,
		cvs:       deps.CVs,
		users:     deps.Users,
		logger:    deps.Logger.With("component", "site_service"),
	}
}

// SignIn returns the caller's profile, creating it on first sign-in.
func (s *SiteService) SignIn(ctx context.Context, claims *identity.Claims) (*model.Profile, bool, error) {
	p := &model.Profile{
		ID:          claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
	}

	// Tokens from some sign-in methods carry no name; the user record may.
	if p.DisplayName == "" && s.users != nil {
		if u, err := s.users.LookupUser(ctx, claims.Subject); err == nil {
			p.DisplayName = u.DisplayName
			if p.Email == "" {
				p.Email = u.Email
			}
		} else if !errors.Is(err, identity.ErrUserNotFound) {
			s.logger.Warn("user lookup failed", slog.String("error", err.Error()))
		}
	}

	got, created, err := profile.GetOrCreate(ctx, s.store, p)
	if err != nil {
		return nil, false, fmt.Errorf("sign in: %w", err)
	}
	if created {
		s.logger.Info("profile created", slog.String("user_id", got.ID))
	}
	return got, created, nil
}

// GetProfile returns a profile by owner id.
func (s *SiteService) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

// UpdateProfile validates and applies a partial edit.
func (s *SiteService) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error) {
	update.Normalize()
	if err := update.Validate(); err != nil {
		return nil, err
	}

	current, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Subdomain != nil && *update.Subdomain != "" && s.resolver.IsReserved(*update.Subdomain) {
		return nil, &model.ValidationError{Field: "subdomain", Err: model.ErrSubdomainReserved}
	}

	domainChanged := update.CustomDomain != nil && *update.CustomDomain != current.Settings.CustomDomain
	if domainChanged && *update.CustomDomain != "" {
		if !current.IsPublished() {
			return nil, ErrPremiumRequired
		}
		platform := s.resolver.PlatformDomain()
		if d := *update.CustomDomain; d == platform || strings.HasSuffix(d, "."+platform) {
			return nil, ErrPlatformDomain
		}
	}

	updated, err := s.store.Update(ctx, id, update)
	if err != nil {
		switch {
		case errors.Is(err, profile.ErrNotFound):
			return nil, ErrProfileNotFound
		case errors.Is(err, profile.ErrSubdomainTaken):
			return nil, ErrSubdomainTaken
		case errors.Is(err, profile.ErrDomainTaken):
			return nil, ErrDomainTaken
		}
		return nil, err
	}

	if domainChanged {
		s.directory.Invalidate(ctx, current.Settings.CustomDomain)
		s.directory.Invalidate(ctx, updated.Settings.CustomDomain)
	}

	s.logger.Info("profile updated", slog.String("user_id", id))
	return updated, nil
}

// UploadCV stores a CV and records its path on the profile.
func (s *SiteService) UploadCV(ctx context.Context, id string, r io.Reader, contentType string) (*model.Profile, error) {
	if s.cvs == nil {
		return nil, ErrCVStorageDisabled
	}
	path, err := s.cvs.Put(ctx, id, r, contentType)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetCVPath(ctx, id, path); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return s.GetProfile(ctx, id)
}

// DeleteCV removes the stored CV.
func (s *SiteService) DeleteCV(ctx context.Context, id string) error {
	if s.cvs == nil {
		return ErrCVStorageDisabled
	}
	p, err := s.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if p.CVPath == "" {
		return ErrNoCV
	}
	if err := s.cvs.Delete(ctx, p.CVPath); err != nil {
		return err
	}
	return s.store.SetCVPath(ctx, id, "")
}
