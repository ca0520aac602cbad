package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/scholarsite/scholarsite/internal/identity"
)

// responseWriter records the status and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger returns a middleware that logs one line per request.
// Query strings are omitted since they may carry checkout session ids.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			// Claims are added by inner middleware, so capture them on the way out.
			var subject string
			next.ServeHTTP(wrapped, r.WithContext(identity.ContextWithSubjectSink(r.Context(), &subject)))

			duration := time.Since(start)

			attrs := []slog.Attr{
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("host", r.Host),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", wrapped.status),
				slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
			}
			if wrapped.bytes > 0 {
				attrs = append(attrs, slog.Int("bytes", wrapped.bytes))
			}
			if subject != "" {
				attrs = append(attrs, slog.String("user_id", subject))
			}
			// The gate shares r.Header, so public-site routing is visible here.
			if tenantID := r.Header.Get(HeaderTenantID); tenantID != "" {
				attrs = append(attrs, slog.String("tenant_id", tenantID))
			} else if r.Header.Get(HeaderIsPremium) == "true" {
				attrs = append(attrs, slog.String("tenant_host", r.Header.Get(HeaderHostname)))
			}

			level := slog.LevelInfo
			switch {
			case wrapped.status >= 500:
				level = slog.LevelError
			case wrapped.status >= 400 && wrapped.status != http.StatusNotFound:
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}
