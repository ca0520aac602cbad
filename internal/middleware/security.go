package middleware

import (
	"net"
	"net/http"
	"strings"
)

// SecurityConfig holds configuration for security headers.
type SecurityConfig struct {
	// IsDevelopment disables HSTS.
	IsDevelopment bool
	// PlatformDomain gets includeSubDomains HSTS. Tenant custom domains are
	// not ours to pin, so they get a plain max-age.
	PlatformDomain string
	// PublicCacheControl is sent on public-site responses, which may be
	// cached by the edge. Private paths are always no-store.
	PublicCacheControl string
	MaxRequestBodySize int64
}

// DefaultSecurityConfig returns production defaults.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		PublicCacheControl: "public, max-age=60",
		MaxRequestBodySize: 1 << 20,
	}
}

// staticHeaders are identical on every response. Bodies are JSON, so the CSP
// forbids everything.
var staticHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "same-site"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()"},
}

const (
	hstsPlatform = "max-age=31536000; includeSubDomains"
	hstsTenant   = "max-age=31536000"
)

// Security applies security and caching headers to every response.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	platform := strings.ToLower(strings.TrimSuffix(cfg.PlatformDomain, "."))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range staticHeaders {
				h.Set(kv[0], kv[1])
			}

			if !cfg.IsDevelopment {
				if onPlatform(r.Host, platform) {
					h.Set("Strict-Transport-Security", hstsPlatform)
				} else {
					h.Set("Strict-Transport-Security", hstsTenant)
				}
			}

			// Public sites vary by host; handlers may tighten this later.
			if isPrivatePath(r.URL.Path) || cfg.PublicCacheControl == "" {
				h.Set("Cache-Control", "no-store")
			} else {
				h.Set("Cache-Control", cfg.PublicCacheControl)
				h.Add("Vary", "Host")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize rejects bodies over maxBytes up front when Content-Length says
// so, and caps streaming reads otherwise.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// isPrivatePath reports whether responses for path depend on the session.
func isPrivatePath(path string) bool {
	return matchesAny(path, ProtectedPrefixes) ||
		matchesAny(path, AuthRoutes) ||
		matchesAny(path, APIPrefixes) ||
		matchesAny(path, probePaths)
}

var probePaths = []string{"/healthz", "/readyz", "/metrics"}

// onPlatform reports whether host is the platform domain or one of its subdomains.
// An empty platform treats every host as the platform's own.
func onPlatform(host, platform string) bool {
	if platform == "" {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return host == platform || strings.HasSuffix(host, "."+platform)
}
