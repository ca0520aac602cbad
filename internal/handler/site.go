package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/scholarsite/scholarsite/internal/handler/dto"
	"github.com/scholarsite/scholarsite/internal/middleware"
	"github.com/scholarsite/scholarsite/internal/model"
	"github.com/scholarsite/scholarsite/internal/service"
)

// SiteHandler serves public tenant sites and the app's page payloads.
type SiteHandler struct {
	sites          *service.SiteService
	platformDomain string
	logger         *slog.Logger
}

// NewSiteHandler creates a new SiteHandler.
func NewSiteHandler(sites *service.SiteService, platformDomain string, logger *slog.Logger) *SiteHandler {
	return &SiteHandler{
		sites:          sites,
		platformDomain: strings.ToLower(platformDomain),
		logger:         logger.With("handler", "site"),
	}
}

// Public handles GET /* for routed hosts. Hosts naming no tenant get the
// platform landing payload.
func (h *SiteHandler) Public(w http.ResponseWriter, r *http.Request) {
	route, _ := middleware.RouteFromContext(r.Context())

	site, err := h.sites.PublicSite(r.Context(), route)
	if err != nil {
		if errors.Is(err, service.ErrNoTenant) {
			writeJSON(w, http.StatusOK, dto.LandingResponse{
				Name:           "scholarsite",
				PlatformDomain: h.platformDomain,
				Plans:          []string{string(model.PlanMonthly), string(model.PlanYearly)},
			})
			return
		}
		handleServiceError(h.logger, w, r, err)
		return
	}

	if site.Degraded {
		w.Header().Set("Cache-Control", "no-store")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=60")
	}
	writeJSON(w, http.StatusOK, site)
}

// Dashboard handles GET /dashboard and everything beneath it.
func (h *SiteHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sub, ok := subjectOrReject(w, r)
	if !ok {
		return
	}

	p, err := h.sites.GetProfile(r.Context(), sub)
	if err != nil {
		handleServiceError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DashboardResponse{
		Profile:      p,
		Subscription: p.Subscription,
		Published:    p.IsPublished(),
		SiteURL:      h.siteURL(p),
	})
}

// AuthPage handles GET /login and GET /register.
func (h *SiteHandler) AuthPage(w http.ResponseWriter, r *http.Request) {
	page := strings.TrimPrefix(r.URL.Path, "/")
	writeJSON(w, http.StatusOK, dto.AuthPageResponse{
		Page:     page,
		Redirect: safeRedirect(r.URL.Query().Get("redirect")),
	})
}

func (h *SiteHandler) siteURL(p *model.Profile) string {
	switch {
	case p.Settings.CustomDomain != "" && p.IsPublished():
		return "https://" + p.Settings.CustomDomain
	case p.Settings.Subdomain != "":
		return "https://" + p.Settings.Subdomain + "." + h.platformDomain
	default:
		return ""
	}
}

// safeRedirect keeps only same-origin absolute paths.
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return ""
	}
	return target
}
