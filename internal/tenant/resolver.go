// Package tenant maps request hostnames to researcher sites.
package tenant

import (
	"net"
	"strings"
)

// DefaultPreviewSuffixes are deployment preview hosts that never carry a tenant.
var DefaultPreviewSuffixes = []string{".vercel.app"}

// Route is the routing fact derived from a request's host.
// TenantID is empty when the host names no basic-tier tenant; for premium
// hosts the tenant is looked up downstream by custom domain.
type Route struct {
	TenantID  string
	IsPremium bool
	Hostname  string
}

// Resolver classifies hostnames against the platform domain.
// It is a pure function of its input and safe for concurrent use.
type Resolver struct {
	platform        string
	platformName    string
	previewSuffixes []string
}

// NewResolver creates a Resolver for platformDomain (e.g. "platform.app").
func NewResolver(platformDomain string, previewSuffixes []string) *Resolver {
	platform := normalizeHost(platformDomain)
	name, _, _ := strings.Cut(platform, ".")

	suffixes := make([]string, 0, len(previewSuffixes))
	for _, s := range previewSuffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		suffixes = append(suffixes, s)
	}

	return &Resolver{platform: platform, platformName: name, previewSuffixes: suffixes}
}

// PlatformDomain returns the normalized platform domain.
func (r *Resolver) PlatformDomain() string {
	return r.platform
}

// Resolve derives the tenant route for host. Host may include a port.
func (r *Resolver) Resolve(host string) Route {
	hostname := normalizeHost(host)
	route := Route{Hostname: hostname}

	if hostname == "" || r.isLocal(hostname) {
		return route
	}

	if hostname == r.platform {
		return route
	}

	if sub, ok := strings.CutSuffix(hostname, "."+r.platform); ok {
		if r.isTenantSlug(sub) {
			route.TenantID = sub
		}
		return route
	}

	route.IsPremium = true
	return route
}

// IsReserved reports whether slug can never name a tenant.
func (r *Resolver) IsReserved(slug string) bool {
	slug = strings.ToLower(slug)
	return slug == "www" || slug == r.platformName
}

func (r *Resolver) isTenantSlug(sub string) bool {
	if sub == "" || strings.Contains(sub, ".") {
		return false
	}
	return !r.IsReserved(sub)
}

func (r *Resolver) isLocal(hostname string) bool {
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	if net.ParseIP(hostname) != nil {
		return true
	}
	for _, s := range r.previewSuffixes {
		if strings.HasSuffix(hostname, s) || hostname == s[1:] {
			return true
		}
	}
	return false
}

// normalizeHost lower-cases host and strips any port and trailing dot.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	} else {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	return strings.TrimSuffix(host, ".")
}
