package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	// AllowedOrigins are exact origins ("https://platform.app") or host
	// wildcards ("*.platform.app", "https://*.platform.app"). A bare "*" is
	// ignored because responses carry credentials.
	AllowedOrigins []string

	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string

	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// DefaultCORSConfig returns CORS defaults for the dashboard front end.
// Credentials are allowed because the session travels in a cookie.
func DefaultCORSConfig(origins []string) CORSConfig {
	return CORSConfig{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Accept", "Accept-Language", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

// originRule matches one configured origin entry.
type originRule struct {
	scheme string // empty matches http and https
	host   string // exact host, or the suffix ".platform.app" when wildcard
	wild   bool
}

func parseOriginRule(raw string) (originRule, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "*" {
		return originRule{}, false
	}

	var rule originRule
	if scheme, rest, ok := strings.Cut(raw, "://"); ok {
		rule.scheme = scheme
		raw = rest
	}
	raw = strings.TrimSuffix(raw, "/")
	if strings.HasPrefix(raw, "*.") {
		rule.wild = true
		raw = raw[1:]
	}
	if raw == "" || raw == "." {
		return originRule{}, false
	}
	rule.host = raw
	return rule, true
}

func (o originRule) matches(u *url.URL) bool {
	if o.scheme != "" && o.scheme != u.Scheme {
		return false
	}
	if o.scheme == "" && u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Host)
	if !o.wild {
		return host == o.host
	}
	// "*.platform.app" needs at least one label before the suffix.
	return strings.HasSuffix(host, o.host) && len(host) > len(o.host)
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing,
// including preflight OPTIONS requests.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")

	rules := make([]originRule, 0, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if rule, ok := parseOriginRule(o); ok {
			rules = append(rules, rule)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")

			if !originAllowed(origin, rules) {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				// Served without CORS headers; the browser withholds the response.
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				if cfg.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, rules []originRule) bool {
	if len(rules) == 0 {
		return false
	}
	u, err := url.Parse(strings.ToLower(origin))
	if err != nil || u.Host == "" || u.Path != "" {
		return false
	}
	for _, rule := range rules {
		if rule.matches(u) {
			return true
		}
	}
	return false
}
