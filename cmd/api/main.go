// Package main is the entrypoint for the scholarsite API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"

	"github.com/scholarsite/scholarsite/internal/billing"
	"github.com/scholarsite/scholarsite/internal/cache"
	"github.com/scholarsite/scholarsite/internal/config"
	"github.com/scholarsite/scholarsite/internal/docstore"
	"github.com/scholarsite/scholarsite/internal/handler"
	"github.com/scholarsite/scholarsite/internal/identity"
	"github.com/scholarsite/scholarsite/internal/metrics"
	"github.com/scholarsite/scholarsite/internal/middleware"
	"github.com/scholarsite/scholarsite/internal/model"
	"github.com/scholarsite/scholarsite/internal/openalex"
	"github.com/scholarsite/scholarsite/internal/profile"
	"github.com/scholarsite/scholarsite/internal/repository"
	"github.com/scholarsite/scholarsite/internal/server"
	"github.com/scholarsite/scholarsite/internal/service"
	"github.com/scholarsite/scholarsite/internal/session"
	"github.com/scholarsite/scholarsite/internal/storage"
	"github.com/scholarsite/scholarsite/internal/tenant"
)

func main() {
	ctx := context.Background()

	// A local .env is optional; real environments set variables directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// run constructs every client explicitly, registers its teardown, and serves
// until shutdown.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var hooks []namedHook
	closeAll := func() {
		for i := len(hooks) - 1; i >= 0; i-- {
			_ = hooks[i].fn(ctx)
		}
	}

	recorder := metrics.NewPrometheus()

	// Firebase app: identity directory, Firestore and Cloud Storage share it.
	var appOpts []option.ClientOption
	if cfg.FirebaseCredentialsFile != "" {
		appOpts = append(appOpts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.FirebaseProjectID,
		StorageBucket: cfg.FirebaseStorageBucket,
	}, appOpts...)
	if err != nil {
		return fmt.Errorf("init firebase: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return fmt.Errorf("init firebase auth: %w", err)
	}
	users := identity.NewDirectory(authClient)
	verifier := identity.NewVerifier(authClient, cfg.IdentityTimeout)

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return errors.New("redis unavailable")
	}
	hooks = append(hooks, namedHook{"redis", func(context.Context) error { return cacheClient.Close() }})
	logger.Info("connected to Redis")

	store, storeHook, err := openProfileStore(ctx, cfg, app, logger)
	if err != nil {
		closeAll()
		return err
	}
	hooks = append(hooks, storeHook)

	var cvs service.CVStore
	if cfg.FirebaseStorageBucket != "" {
		storageClient, err := app.Storage(ctx)
		if err != nil {
			closeAll()
			return fmt.Errorf("init cloud storage: %w", err)
		}
		bucket, err := storageClient.DefaultBucket()
		if err != nil {
			closeAll()
			return fmt.Errorf("open cv bucket: %w", err)
		}
		cvs = storage.NewCVStore(bucket)
	} else {
		logger.Warn("FIREBASE_STORAGE_BUCKET not set, cv uploads disabled")
	}

	provider := billing.NewStripeProvider(billing.StripeConfig{
		SecretKey:  cfg.StripeSecretKey,
		Timeout:    cfg.StripeTimeout,
		MaxRetries: &cfg.StripeMaxRetries,
		Logger:     logger,
	}, recorder)
	reconciler := billing.NewReconciler(
		provider,
		store,
		cacheClient.NewLocker(cfg.LockTTL, cfg.LockWait),
		billing.Config{
			Prices:       priceTable(cfg),
			BaseURL:      cfg.BaseURL,
			FetchTimeout: cfg.StripeCallBudget(),
		},
		logger,
		recorder,
	)
	parser := billing.NewParser(cfg.StripeWebhookSecret, billing.DefaultTolerance)

	source := openalex.NewCached(
		openalex.NewClient(openalex.Config{
			BaseURL: cfg.OpenAlexBaseURL,
			Mailto:  cfg.OpenAlexMailto,
			Timeout: cfg.OpenAlexTimeout,
		}, logger, recorder),
		cacheClient,
		logger,
		recorder,
	)

	resolver := tenant.NewResolver(cfg.PlatformDomain, cfg.PreviewHostSuffixes)
	sites := service.NewSiteService(service.SiteDeps{
		Store:     store,
		Resolver:  resolver,
		Directory: tenant.NewDirectory(store, cacheClient, logger),
		Source:    source,
		CVs:       cvs,
		Users:     users,
		Logger:    logger,
	})

	sessions, err := session.NewManager(cfg.SessionSecret, !cfg.IsDevelopment())
	if err != nil {
		closeAll()
		return fmt.Errorf("init sessions: %w", err)
	}

	gate := middleware.GateConfig{
		Logger:   logger,
		Sessions: sessions,
		Verifier: verifier,
		Resolver: resolver,
		Metrics:  recorder,
	}

	r := setupRouter(routerDeps{
		cfg:              cfg,
		logger:           logger,
		gate:             gate,
		apiRateLimit:     cacheClient.CheckIPRateLimit,
		webhookRateLimit: cacheClient.CheckWebhookRateLimit,
		health: handler.NewHealthHandler(
			handler.HealthCheck{Name: cfg.ProfileBackend, Checker: store},
			handler.HealthCheck{Name: "redis", Checker: cacheClient},
		),
		metrics:  handler.NewMetricsHandler(recorder.Handler()),
		sessions: handler.NewSessionHandler(verifier, sessions, sites, logger),
		profiles: handler.NewProfileHandler(sites, logger),
		cvs:      handler.NewCVHandler(sites, logger),
		billing:  handler.NewBillingHandler(reconciler, sites, logger),
		webhooks: handler.NewWebhookHandler(parser, reconciler, logger),
		openalex: handler.NewOpenAlexHandler(source, logger),
		sites:    handler.NewSiteHandler(sites, cfg.PlatformDomain, logger),
	})

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	for _, h := range hooks {
		srv.OnShutdown(h.name, h.fn)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"platform_domain", cfg.PlatformDomain,
		"profile_backend", cfg.ProfileBackend,
		"env", cfg.AppEnv,
	)

	return srv.Run(ctx)
}

type namedHook struct {
	name string
	fn   server.ShutdownFunc
}

// openProfileStore connects the configured profile backend.
func openProfileStore(ctx context.Context, cfg *config.Config, app *firebase.App, logger *slog.Logger) (profile.Store, namedHook, error) {
	switch cfg.ProfileBackend {
	case config.BackendFirestore:
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, namedHook{}, fmt.Errorf("init firestore: %w", err)
		}
		logger.Info("connected to Firestore", slog.String("project_id", cfg.FirebaseProjectID))
		return docstore.New(client), namedHook{"firestore", func(context.Context) error { return client.Close() }}, nil

	default:
		pool := repository.DefaultPoolOptions
		pool.MaxConns, pool.MinConns = cfg.DBMaxConns, cfg.DBMinConns
		repo, err := repository.New(ctx, cfg.DatabaseURL, pool)
		if err != nil {
			logger.Error(
				"failed to connect to database",
				slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
				slog.String("database_url", redactURL(cfg.DatabaseURL)),
			)
			return nil, namedHook{}, errors.New("database unavailable")
		}
		if err := repo.Migrate(ctx, cfg.MigrationsDir, logger); err != nil {
			repo.Close()
			return nil, namedHook{}, fmt.Errorf("migrate: %s", sanitizeError(err, cfg.DatabaseURL))
		}
		logger.Info("connected to database")
		return repo, namedHook{"postgres", func(context.Context) error { repo.Close(); return nil }}, nil
	}
}

// priceTable maps configured Stripe prices to plans.
func priceTable(cfg *config.Config) map[model.Plan]string {
	prices := make(map[model.Plan]string, 2)
	if cfg.StripePriceMonthly != "" {
		prices[model.PlanMonthly] = cfg.StripePriceMonthly
	}
	if cfg.StripePriceYearly != "" {
		prices[model.PlanYearly] = cfg.StripePriceYearly
	}
	return prices
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
