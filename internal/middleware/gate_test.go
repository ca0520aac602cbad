package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/scholarsite/scholarsite/internal/identity"
	"github.com/scholarsite/scholarsite/internal/metrics"
	"github.com/scholarsite/scholarsite/internal/session"
	"github.com/scholarsite/scholarsite/internal/tenant"
)

type stubVerifier map[string]error

func (s stubVerifier) Verify(_ context.Context, raw string) (*identity.Claims, error) {
	err, ok := s[raw]
	if !ok {
		return nil, identity.ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	return &identity.Claims{Subject: "u-" + raw}, nil
}

type gateFixture struct {
	sessions *session.Manager
	rec      *metrics.InMemoryRecorder
	handler  http.Handler
	// seen captures the request the next handler received.
	seen *http.Request
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	sessions, err := session.NewManager(strings.Repeat("s", 32), false)
	if err != nil {
		t.Fatal(err)
	}
	f := &gateFixture{sessions: sessions, rec: metrics.NewInMemory()}
	cfg := GateConfig{
		Logger:   discardLogger(),
		Sessions: sessions,
		Verifier: stubVerifier{
			"good":    nil,
			"expired": identity.ErrTokenExpired,
			"outage":  identity.ErrKeysUnavailable,
		},
		Resolver: tenant.NewResolver("platform.app", tenant.DefaultPreviewSuffixes),
		Metrics:  f.rec,
	}
	f.handler = Gate(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.seen = r
		w.WriteHeader(http.StatusOK)
	}))
	return f
}

// cookie returns a signed session cookie carrying token.
func (f *gateFixture) cookie(t *testing.T, token string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := f.sessions.Set(rec, token); err != nil {
		t.Fatal(err)
	}
	return rec.Result().Cookies()[0]
}

func (f *gateFixture) do(host, target string, c *http.Cookie) *httptest.ResponseRecorder {
	f.seen = nil
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = host
	if c != nil {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func clearedCookie(rec *httptest.ResponseRecorder) bool {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			return true
		}
	}
	return false
}

func TestGate_ProtectedWithoutSessionRedirectsToLogin(t *testing.T) {
	t.Parallel()

	for _, target := range []string{"/dashboard", "/dashboard/", "/dashboard/settings", "/dashboard/billing?session_id=cs_1"} {
		f := newGateFixture(t)
		rec := f.do("platform.app", target, nil)

		if rec.Code != http.StatusFound {
			t.Fatalf("%s: status = %d, want 302", target, rec.Code)
		}
		loc, err := url.Parse(rec.Header().Get("Location"))
		if err != nil {
			t.Fatal(err)
		}
		if loc.Path != LoginPath {
			t.Errorf("%s: redirect path = %q, want %q", target, loc.Path, LoginPath)
		}
		if got := loc.Query().Get("redirect"); got != target {
			t.Errorf("%s: redirect param = %q, want %q", target, got, target)
		}
		if f.seen != nil {
			t.Errorf("%s: next handler must not run", target)
		}
	}
}

func TestGate_ProtectedWithValidSession(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	rec := f.do("platform.app", "/dashboard", f.cookie(t, "good"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := identity.SubjectFromContext(f.seen.Context()); got != "u-good" {
		t.Errorf("subject in context = %q, want u-good", got)
	}
	if f.seen.Header.Get(HeaderTenantID) != "" || f.seen.Header.Get(HeaderHostname) != "" {
		t.Error("protected requests must not carry routing headers")
	}
}

func TestGate_StaleCookieIsCleared(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		token  string
		cookie *http.Cookie
		clear  bool
	}{
		{name: "expired token", token: "expired", clear: true},
		{name: "invalid token", token: "forged", clear: true},
		{name: "bad signature", cookie: &http.Cookie{Name: session.CookieName, Value: "unsigned"}, clear: true},
		{name: "key outage keeps cookie", token: "outage", clear: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture(t)
			c := tt.cookie
			if c == nil {
				c = f.cookie(t, tt.token)
			}
			rec := f.do("platform.app", "/dashboard/settings", c)

			if rec.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", rec.Code)
			}
			if !strings.HasPrefix(rec.Header().Get("Location"), LoginPath+"?redirect=") {
				t.Errorf("Location = %q, want login redirect", rec.Header().Get("Location"))
			}
			if got := clearedCookie(rec); got != tt.clear {
				t.Errorf("cookie cleared = %v, want %v", got, tt.clear)
			}
		})
	}
}

func TestGate_AuthRouteWithSessionRedirectsToDashboard(t *testing.T) {
	t.Parallel()

	for _, target := range []string{"/login", "/register", "/login?redirect=%2Fdashboard"} {
		f := newGateFixture(t)
		rec := f.do("platform.app", target, f.cookie(t, "good"))

		if rec.Code != http.StatusFound {
			t.Fatalf("%s: status = %d, want 302", target, rec.Code)
		}
		if got := rec.Header().Get("Location"); got != DashboardPath {
			t.Errorf("%s: Location = %q, want %q", target, got, DashboardPath)
		}
	}
}

func TestGate_AuthRouteWithoutSession(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	rec := f.do("platform.app", "/login", nil)
	if rec.Code != http.StatusOK || f.seen == nil {
		t.Fatalf("status = %d, want pass-through", rec.Code)
	}

	f = newGateFixture(t)
	rec = f.do("platform.app", "/login", f.cookie(t, "expired"))
	if rec.Code != http.StatusOK {
		t.Errorf("expired session on login: status = %d, want 200", rec.Code)
	}
	if !clearedCookie(rec) {
		t.Error("expired session on login should be cleared")
	}
}

func TestGate_PublicRoutingHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host        string
		path        string
		wantTenant  string
		wantPremium string
		wantHost    string
	}{
		{"janedoe.platform.app", "/", "janedoe", "false", "janedoe.platform.app"},
		{"janedoe.platform.app", "/publications", "janedoe", "false", "janedoe.platform.app"},
		{"janedoe.com", "/", "", "true", "janedoe.com"},
		{"www.platform.app", "/", "", "false", "www.platform.app"},
		{"localhost:3000", "/about", "", "false", "localhost"},
	}

	for _, tt := range tests {
		f := newGateFixture(t)
		rec := f.do(tt.host, tt.path, nil)

		if rec.Code != http.StatusOK || f.seen == nil {
			t.Fatalf("%s%s: status = %d, want pass-through", tt.host, tt.path, rec.Code)
		}
		h := f.seen.Header
		if got := h.Get(HeaderTenantID); got != tt.wantTenant {
			t.Errorf("%s: x-tenant-id = %q, want %q", tt.host, got, tt.wantTenant)
		}
		if got := h.Get(HeaderIsPremium); got != tt.wantPremium {
			t.Errorf("%s: x-is-premium = %q, want %q", tt.host, got, tt.wantPremium)
		}
		if got := h.Get(HeaderHostname); got != tt.wantHost {
			t.Errorf("%s: x-hostname = %q, want %q", tt.host, got, tt.wantHost)
		}
		route, ok := RouteFromContext(f.seen.Context())
		if !ok || route.TenantID != tt.wantTenant {
			t.Errorf("%s: route in context = %+v, %v", tt.host, route, ok)
		}
	}
}

func TestGate_StripsClientRoutingHeaders(t *testing.T) {
	t.Parallel()

	for _, target := range []string{"/", "/api/profile", "/_next/static/chunk.js"} {
		f := newGateFixture(t)
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Host = "janedoe.com"
		req.Header.Set("x-tenant-id", "victim")
		req.Header.Set("x-is-premium", "false")
		req.Header.Set("x-hostname", "victim.platform.app")
		f.handler.ServeHTTP(httptest.NewRecorder(), req)

		if got := f.seen.Header.Get(HeaderTenantID); got == "victim" {
			t.Errorf("%s: client-supplied x-tenant-id survived", target)
		}
		if got := f.seen.Header.Get(HeaderHostname); got == "victim.platform.app" {
			t.Errorf("%s: client-supplied x-hostname survived", target)
		}
	}
}

func TestGate_APIAndInternalPassThrough(t *testing.T) {
	t.Parallel()

	for _, target := range []string{
		"/api/profile",
		"/api/webhooks/stripe",
		"/_next/static/app.js",
		"/static/logo.svg",
		"/favicon.ico",
		"/robots.txt",
		"/healthz",
		"/metrics",
	} {
		f := newGateFixture(t)
		rec := f.do("janedoe.platform.app", target, nil)

		if rec.Code != http.StatusOK || f.seen == nil {
			t.Errorf("%s: status = %d, want pass-through", target, rec.Code)
			continue
		}
		if _, ok := f.seen.Header[http.CanonicalHeaderKey(HeaderTenantID)]; ok {
			t.Errorf("%s: pass-through requests must not carry routing headers", target)
		}
	}
}

func TestGate_Metrics(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	f.do("platform.app", "/dashboard", nil)
	f.do("janedoe.platform.app", "/", nil)
	f.do("janedoe.com", "/", nil)

	s := f.rec.Snapshot()
	if s.GateDecisions[metrics.GateLoginRedirect] != 1 || s.GateDecisions[metrics.GatePublic] != 2 {
		t.Errorf("gate decisions = %v", s.GateDecisions)
	}
	if s.TenantResolutions["basic"] != 1 || s.TenantResolutions["premium"] != 1 {
		t.Errorf("tenant resolutions = %v", s.TenantResolutions)
	}
}

// The prefix tables are configuration; these checks catch edits that would
// make a route ambiguous or unreachable.
func TestGate_PrefixTables(t *testing.T) {
	t.Parallel()

	tables := map[string][]string{
		"protected": ProtectedPrefixes,
		"auth":      AuthRoutes,
		"api":       APIPrefixes,
		"internal":  InternalPrefixes,
	}

	owner := map[string]string{}
	for name, table := range tables {
		if len(table) == 0 {
			t.Errorf("%s table is empty", name)
		}
		for _, p := range table {
			if !strings.HasPrefix(p, "/") || (len(p) > 1 && strings.HasSuffix(p, "/")) {
				t.Errorf("%s prefix %q must start with / and not end with /", name, p)
			}
			if other, dup := owner[p]; dup {
				t.Errorf("prefix %q listed in both %s and %s", p, other, name)
			}
			owner[p] = name
		}
	}

	for name, table := range tables {
		for _, p := range table {
			for otherName, other := range tables {
				if otherName == name {
					continue
				}
				if matchesAny(p, other) {
					t.Errorf("%s prefix %q is shadowed by %s", name, p, otherName)
				}
			}
		}
	}

	if !matchesAny(DashboardPath, ProtectedPrefixes) {
		t.Error("dashboard root must be protected")
	}
	if !matchesAny(LoginPath, AuthRoutes) {
		t.Error("login path must be an auth route")
	}
	if matchesAny(LoginPath, ProtectedPrefixes) {
		t.Error("login must not be protected or the gate would loop")
	}
	if matchesAny("/dashboards", ProtectedPrefixes) {
		t.Error("prefixes must match whole path segments")
	}
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	cfg := GateConfig{
		Logger:   discardLogger(),
		Sessions: f.sessions,
		Verifier: stubVerifier{"good": nil, "expired": identity.ErrTokenExpired},
	}
	var subject string
	h := RequireSession(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = identity.SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no session: status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"UNAUTHORIZED"`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(f.cookie(t, "expired"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || !clearedCookie(rec) {
		t.Errorf("expired session: status = %d, cleared = %v", rec.Code, clearedCookie(rec))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(f.cookie(t, "good"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || subject != "u-good" {
		t.Errorf("valid session: status = %d, subject = %q", rec.Code, subject)
	}
}
