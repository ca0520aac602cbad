package middleware

import (
	"net/http"

	"github.com/scholarsite/scholarsite/internal/identity"
)

// RequireSession authenticates API requests from the session cookie.
// Failures get a 401 JSON body instead of a redirect.
func RequireSession(cfg GateConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity.ClaimsFromContext(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, ok := authenticate(cfg, w, r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.ContextWithClaims(r.Context(), claims)))
		})
	}
}

// writeError writes the API error body used across the service.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `","code":"` + code + `"}`))
}
