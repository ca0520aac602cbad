// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Profile storage backends.
const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

const minSessionSecretLength = 32

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Public origin of the app, used for checkout and portal return URLs
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// Tenant routing
	PlatformDomain      string   `env:"PLATFORM_DOMAIN,required,notEmpty"`
	PreviewHostSuffixes []string `env:"PREVIEW_HOST_SUFFIXES" envSeparator:"," envDefault:".vercel.app"`

	// Profile storage
	ProfileBackend string `env:"PROFILE_BACKEND" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	MigrationsDir  string `env:"MIGRATIONS_DIR"`
	DBMaxConns     int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns     int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Session cookie
	SessionSecret string `env:"SESSION_SECRET,required,notEmpty"`

	// Identity provider and Firebase services
	FirebaseProjectID       string        `env:"FIREBASE_PROJECT_ID,required,notEmpty"`
	FirebaseCredentialsFile string        `env:"FIREBASE_CREDENTIALS_FILE"`
	FirebaseStorageBucket   string        `env:"FIREBASE_STORAGE_BUCKET"`
	IdentityTimeout         time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"5s"`

	// Billing (Stripe)
	StripeSecretKey     string        `env:"STRIPE_SECRET_KEY,required,notEmpty"`
	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET,required,notEmpty"`
	StripePriceMonthly  string        `env:"STRIPE_PRICE_MONTHLY"`
	StripePriceYearly   string        `env:"STRIPE_PRICE_YEARLY"`
	StripeTimeout       time.Duration `env:"STRIPE_TIMEOUT" envDefault:"10s"`
	StripeMaxRetries    int64         `env:"STRIPE_MAX_RETRIES" envDefault:"2"`

	// Bibliographic source (OpenAlex)
	OpenAlexBaseURL string        `env:"OPENALEX_BASE_URL" envDefault:"https://api.openalex.org"`
	OpenAlexMailto  string        `env:"OPENALEX_MAILTO"`
	OpenAlexTimeout time.Duration `env:"OPENALEX_TIMEOUT" envDefault:"10s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Subscription locks
	LockTTL  time.Duration `env:"LOCK_TTL" envDefault:"45s"`
	LockWait time.Duration `env:"LOCK_WAIT" envDefault:"5s"`

	// Rate limiting
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"40"`
	TrustProxy       bool `env:"TRUST_PROXY" envDefault:"false"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB). CV uploads have their own limit.
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// StripeCallBudget is the longest a single Stripe call can take with every retry used.
func (c *Config) StripeCallBudget() time.Duration {
	return c.StripeTimeout * time.Duration(c.StripeMaxRetries+1)
}

// Validate checks rules that span several variables.
func (c *Config) Validate() error {
	var errs []error

	switch c.ProfileBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when PROFILE_BACKEND=postgres"))
		}
	case BackendFirestore:
	default:
		errs = append(errs, fmt.Errorf("PROFILE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendFirestore, c.ProfileBackend))
	}

	if len(c.SessionSecret) < minSessionSecretLength {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLength))
	}

	if strings.Contains(c.PlatformDomain, "://") || strings.Contains(c.PlatformDomain, "/") {
		errs = append(errs, errors.New("PLATFORM_DOMAIN must be a bare hostname"))
	}

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, errors.New("APP_BASE_URL must be an absolute URL"))
	}

	if c.StripePriceMonthly == "" && c.StripePriceYearly == "" {
		errs = append(errs, errors.New("at least one of STRIPE_PRICE_MONTHLY or STRIPE_PRICE_YEARLY is required"))
	}

	if c.StripeMaxRetries < 0 {
		errs = append(errs, errors.New("STRIPE_MAX_RETRIES must not be negative"))
	} else if budget := c.StripeCallBudget(); c.LockTTL <= budget {
		errs = append(errs, fmt.Errorf("LOCK_TTL (%s) must exceed STRIPE_TIMEOUT x (STRIPE_MAX_RETRIES+1) = %s", c.LockTTL, budget))
	}

	if c.IsProduction() && strings.HasPrefix(c.BaseURL, "http://") {
		errs = append(errs, errors.New("APP_BASE_URL must use https in production"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
