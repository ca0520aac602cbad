package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/scholarsite/scholarsite/internal/config"
	"github.com/scholarsite/scholarsite/internal/handler"
	"github.com/scholarsite/scholarsite/internal/middleware"
)

// routerDeps carries everything setupRouter mounts.
type routerDeps struct {
	cfg    *config.Config
	logger *slog.Logger
	gate   middleware.GateConfig

	apiRateLimit     middleware.RateLimiter
	webhookRateLimit middleware.RateLimiter

	health   *handler.HealthHandler
	metrics  *handler.MetricsHandler
	sessions *handler.SessionHandler
	profiles *handler.ProfileHandler
	cvs      *handler.CVHandler
	billing  *handler.BillingHandler
	webhooks *handler.WebhookHandler
	openalex *handler.OpenAlexHandler
	sites    *handler.SiteHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	h := handler.New()
	r := chi.NewRouter()

	// Global middleware
	if d.cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      d.cfg.IsDevelopment(),
		PlatformDomain:     d.cfg.PlatformDomain,
		PublicCacheControl: middleware.DefaultSecurityConfig().PublicCacheControl,
		MaxRequestBodySize: d.cfg.MaxRequestBodySize,
	}))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(d.cfg.GetCORSAllowedOrigins())))
	r.Use(middleware.Gate(d.gate))

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	// Probes and metrics (no auth required)
	r.Get("/healthz", d.health.Healthz)
	r.Get("/readyz", d.health.Readyz)
	r.Get("/metrics", d.metrics.Metrics)

	apiLimit := middleware.RateLimitIP(middleware.RateLimitConfig{
		Logger:     d.logger,
		Check:      d.apiRateLimit,
		Enabled:    d.cfg.RateLimitEnabled,
		RPS:        d.cfg.RateLimitRPS,
		Burst:      d.cfg.RateLimitBurst,
		Scope:      "api",
		TrustProxy: d.cfg.TrustProxy,
	})
	webhookLimit := middleware.RateLimitIP(middleware.RateLimitConfig{
		Logger:     d.logger,
		Check:      d.webhookRateLimit,
		Enabled:    d.cfg.RateLimitEnabled,
		RPS:        d.cfg.RateLimitRPS * 5,
		Burst:      d.cfg.RateLimitBurst * 5,
		Scope:      "webhook",
		TrustProxy: d.cfg.TrustProxy,
	})
	requireSession := middleware.RequireSession(d.gate)
	jsonBody := middleware.MaxBodySize(d.cfg.MaxRequestBodySize)

	r.Route("/api", func(r chi.Router) {
		r.NotFound(h.NotFound)
		r.MethodNotAllowed(h.MethodNotAllowed)

		// Stripe signs the raw body and enforces its own size limit.
		r.With(webhookLimit).Post("/webhooks/stripe", d.webhooks.Stripe)

		r.Group(func(r chi.Router) {
			r.Use(apiLimit)

			r.With(jsonBody).Post("/auth/session", d.sessions.Create)
			r.Delete("/auth/session", d.sessions.Delete)

			r.Group(func(r chi.Router) {
				r.Use(requireSession)

				// CV uploads are bounded by the handler.
				r.Post("/cv", d.cvs.Upload)
				r.Delete("/cv", d.cvs.Delete)

				r.Group(func(r chi.Router) {
					r.Use(jsonBody)

					r.Get("/profile", d.profiles.Get)
					r.Patch("/profile", d.profiles.Update)
					r.Get("/profiles/{userID}", d.profiles.Get)
					r.Patch("/profiles/{userID}", d.profiles.Update)

					r.Post("/billing/checkout", d.billing.Checkout)
					r.Get("/billing/checkout/{sessionID}", d.billing.VerifyCheckout)
					r.Post("/billing/portal", d.billing.Portal)

					r.Get("/openalex/authors", d.openalex.Authors)
					r.Get("/openalex/works", d.openalex.Works)
				})
			})
		})
	})

	// Page payloads; the gate has already redirected or authenticated.
	r.Get("/dashboard", d.sites.Dashboard)
	r.Get("/dashboard/*", d.sites.Dashboard)
	r.Get("/login", d.sites.AuthPage)
	r.Get("/register", d.sites.AuthPage)

	// Everything else is a public site, routed by host.
	r.Get("/*", d.sites.Public)

	return r
}
