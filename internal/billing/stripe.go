package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/scholarsite/scholarsite/internal/metrics"
)

// StripeConfig configures the Stripe provider.
type StripeConfig struct {
	SecretKey string
	Timeout   time.Duration
	// BaseURL overrides the API endpoint, e.g. for stripe-mock.
	BaseURL string
	// MaxRetries bounds the SDK's own network retries. Nil keeps the SDK default.
	MaxRetries *int64
	// Logger receives the SDK's own request and retry logs. Nil discards them.
	Logger *slog.Logger
}

// StripeProvider implements Provider on the Stripe API.
// It owns its API client; the SDK's package-level key is never set.
type StripeProvider struct {
	api     *client.API
	metrics metrics.Recorder
}

// NewStripeProvider creates a Stripe-backed Provider.
func NewStripeProvider(cfg StripeConfig, rec metrics.Recorder) *StripeProvider {
	if rec == nil {
		rec = metrics.NewNoop()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: cfg.MaxRetries,
		LeveledLogger:     &sdkLogger{logger: logger.With(slog.String("component", "stripe-sdk"))},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := client.New(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &StripeProvider{api: api, metrics: rec}
}

// GetSubscription retrieves the current state of a subscription.
func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	var sub *stripe.Subscription
	err := p.call(ctx, "subscription.get", func() (err error) {
		sub, err = p.api.Subscriptions.Get(id, &stripe.SubscriptionParams{
			Params: stripe.Params{Context: ctx},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromStripeSubscription(sub), nil
}

// GetCheckoutSession retrieves a checkout session.
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	var cs *stripe.CheckoutSession
	err := p.call(ctx, "checkout.get", func() (err error) {
		cs, err = p.api.CheckoutSessions.Get(id, &stripe.CheckoutSessionParams{
			Params: stripe.Params{Context: ctx},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromStripeCheckout(cs), nil
}

// CreateCheckoutSession starts a hosted subscription checkout.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.TenantID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				MetadataTenantKey: req.TenantID,
				"plan":            req.Plan,
			},
		},
	}
	params.AddMetadata(MetadataTenantKey, req.TenantID)
	switch {
	case req.CustomerID != "":
		params.Customer = stripe.String(req.CustomerID)
	case req.Email != "":
		params.CustomerEmail = stripe.String(req.Email)
	}

	var cs *stripe.CheckoutSession
	err := p.call(ctx, "checkout.create", func() (err error) {
		cs, err = p.api.CheckoutSessions.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromStripeCheckout(cs), nil
}

// CreatePortalSession opens a billing portal session and returns its URL.
func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	var ps *stripe.BillingPortalSession
	err := p.call(ctx, "portal.create", func() (err error) {
		ps, err = p.api.BillingPortalSessions.New(&stripe.BillingPortalSessionParams{
			Params:    stripe.Params{Context: ctx},
			Customer:  stripe.String(customerID),
			ReturnURL: stripe.String(returnURL),
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return ps.URL, nil
}

// call runs fn with timing and error classification. Each SDK request is bounded
// by both ctx and the HTTP client timeout; the SDK stops retrying once ctx is done.
func (p *StripeProvider) call(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &ProviderError{Op: op, Retryable: true, Err: err}
	}

	start := time.Now()
	err := fn()
	p.metrics.ObserveProviderCall("stripe", op, time.Since(start), err)
	if err != nil {
		return classifyStripeError(op, err)
	}
	return nil
}

// sdkLogger routes the Stripe SDK's leveled logs into slog.
type sdkLogger struct {
	logger *slog.Logger
}

func (l *sdkLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l *sdkLogger) Infof(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *sdkLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l *sdkLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func classifyStripeError(op string, err error) *ProviderError {
	pe := &ProviderError{Op: op, Err: err}

	var se *stripe.Error
	if errors.As(err, &se) {
		pe.StatusCode = se.HTTPStatusCode
		pe.Retryable = se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500
		return pe
	}

	// Anything else failed in transport: timeouts, resets, DNS.
	pe.Retryable = true
	return pe
}

func fromStripeSubscription(s *stripe.Subscription) *ProviderSubscription {
	ps := &ProviderSubscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		ps.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Price != nil && item.Price.Recurring != nil {
			ps.Interval = string(item.Price.Recurring.Interval)
		}
		ps.PeriodStart = unixTime(item.CurrentPeriodStart)
		ps.PeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return ps
}

func fromStripeCheckout(cs *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:       cs.ID,
		URL:      cs.URL,
		Status:   string(cs.Status),
		TenantID: cs.Metadata[MetadataTenantKey],
	}
	if out.TenantID == "" {
		out.TenantID = cs.ClientReferenceID
	}
	if cs.Customer != nil {
		out.CustomerID = cs.Customer.ID
	}
	if cs.Subscription != nil {
		out.SubscriptionID = cs.Subscription.ID
	}
	return out
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
