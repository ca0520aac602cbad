package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/scholarsite/scholarsite/internal/identity"
	"github.com/scholarsite/scholarsite/internal/metrics"
	"github.com/scholarsite/scholarsite/internal/session"
	"github.com/scholarsite/scholarsite/internal/tenant"
)

// Headers injected on public-site requests. Client-supplied values are always dropped.
const (
	HeaderTenantID  = "X-Tenant-Id"
	HeaderIsPremium = "X-Is-Premium"
	HeaderHostname  = "X-Hostname"
)

// Gate redirect targets.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// Prefix tables, matched on whole path segments.
var (
	ProtectedPrefixes = []string{"/dashboard"}
	AuthRoutes        = []string{"/login", "/register"}
	APIPrefixes       = []string{"/api"}
	InternalPrefixes  = []string{
		"/_next",
		"/static",
		"/assets",
		"/favicon.ico",
		"/robots.txt",
		"/healthz",
		"/readyz",
		"/metrics",
	}
)

// TokenVerifier verifies a session token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*identity.Claims, error)
}

// GateConfig holds the gate's collaborators.
type GateConfig struct {
	Logger   *slog.Logger
	Sessions *session.Manager
	Verifier TokenVerifier
	Resolver *tenant.Resolver
	Metrics  metrics.Recorder
}

type routeKey struct{}

// RouteFromContext returns the tenant route resolved by the gate.
func RouteFromContext(ctx context.Context) (tenant.Route, bool) {
	r, ok := ctx.Value(routeKey{}).(tenant.Route)
	return r, ok
}

// ContextWithRoute stores a tenant route in ctx.
func ContextWithRoute(ctx context.Context, route tenant.Route) context.Context {
	return context.WithValue(ctx, routeKey{}, route)
}

// Gate decides, in order, whether a request is redirected to login, redirected
// to the dashboard, forwarded with tenant routing headers, or passed through.
func Gate(cfg GateConfig) func(http.Handler) http.Handler {
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.NewNoop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(HeaderTenantID)
			r.Header.Del(HeaderIsPremium)
			r.Header.Del(HeaderHostname)

			path := r.URL.Path

			switch {
			case matchesAny(path, ProtectedPrefixes):
				claims, ok := authenticate(cfg, w, r)
				if !ok {
					rec.IncGateDecision(metrics.GateLoginRedirect)
					http.Redirect(w, r, LoginRedirect(r.URL), http.StatusFound)
					return
				}
				rec.IncGateDecision(metrics.GateProtected)
				next.ServeHTTP(w, r.WithContext(identity.ContextWithClaims(r.Context(), claims)))

			case matchesAny(path, AuthRoutes):
				if _, ok := authenticate(cfg, w, r); ok {
					rec.IncGateDecision(metrics.GateDashboardRedirect)
					http.Redirect(w, r, DashboardPath, http.StatusFound)
					return
				}
				rec.IncGateDecision(metrics.GatePassThrough)
				next.ServeHTTP(w, r)

			case matchesAny(path, APIPrefixes), matchesAny(path, InternalPrefixes):
				rec.IncGateDecision(metrics.GatePassThrough)
				next.ServeHTTP(w, r)

			default:
				route := cfg.Resolver.Resolve(r.Host)
				r.Header.Set(HeaderTenantID, route.TenantID)
				r.Header.Set(HeaderIsPremium, strconv.FormatBool(route.IsPremium))
				r.Header.Set(HeaderHostname, route.Hostname)

				rec.IncGateDecision(metrics.GatePublic)
				rec.IncTenantResolution(tierOf(route))
				next.ServeHTTP(w, r.WithContext(ContextWithRoute(r.Context(), route)))
			}
		})
	}
}

// LoginRedirect builds the login URL that returns to u after sign-in.
func LoginRedirect(u *url.URL) string {
	return LoginPath + "?" + url.Values{"redirect": {u.RequestURI()}}.Encode()
}

// authenticate verifies the session cookie. A cookie that is known to be bad
// is cleared before returning.
func authenticate(cfg GateConfig, w http.ResponseWriter, r *http.Request) (*identity.Claims, bool) {
	token, ok := cfg.Sessions.Get(r)
	if !ok {
		if cfg.Sessions.Present(r) {
			cfg.Sessions.Clear(w)
		}
		return nil, false
	}

	claims, err := cfg.Verifier.Verify(r.Context(), token)
	if err != nil {
		if identity.ShouldClearSession(err) {
			cfg.Sessions.Clear(w)
		} else {
			cfg.Logger.Warn("session verification unavailable",
				slog.String("error", err.Error()),
				slog.String("request_id", GetRequestID(r.Context())),
			)
		}
		return nil, false
	}
	return claims, true
}

// matchesAny reports whether path equals a prefix or lies beneath it.
func matchesAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func tierOf(route tenant.Route) string {
	switch {
	case route.TenantID != "":
		return "basic"
	case route.IsPremium:
		return "premium"
	default:
		return "none"
	}
}
