package billing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/scholarsite/scholarsite/internal/metrics"
	"github.com/scholarsite/scholarsite/internal/model"
	"github.com/scholarsite/scholarsite/internal/profile"
)

// Reconciler errors.
var (
	ErrBusy        = errors.New("subscription is being reconciled")
	ErrForbidden   = errors.New("checkout session belongs to another user")
	ErrNoCustomer  = errors.New("no billing customer for profile")
	ErrUnknownPlan = errors.New("plan has no configured price")
	ErrStorage     = errors.New("subscription storage failed")
)

// Locker provides mutual exclusion across service instances.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}

// Result describes what a reconciliation did.
type Result struct {
	Outcome      model.BillingEventOutcome
	TenantID     string
	Subscription *model.Subscription
}

// Config holds reconciler settings.
type Config struct {
	// Prices maps plans to provider price ids.
	Prices map[model.Plan]string
	// BaseURL is the app origin used for checkout and portal return URLs.
	BaseURL string
	// FetchTimeout bounds the provider fetch made while a subscription lock is
	// held. It must be shorter than the lock TTL or a slow fetch can outlive the
	// lock and let an older snapshot overwrite a newer one. Zero leaves only ctx.
	FetchTimeout time.Duration
}

// Reconciler writes provider-confirmed subscription state to tenant profiles.
type Reconciler struct {
	provider Provider
	store    profile.Store
	locker   Locker
	cfg      Config
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(provider Provider, store profile.Store, locker Locker, cfg Config, logger *slog.Logger, rec metrics.Recorder) *Reconciler {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Reconciler{
		provider: provider,
		store:    store,
		locker:   locker,
		cfg:      cfg,
		logger:   logger.With("component", "billing_reconciler"),
		metrics:  rec,
		now:      time.Now,
	}
}

// Reconcile applies a verified webhook event. It is safe under repeated and
// reordered delivery: every write reflects state fetched from the provider
// while holding the subscription's lock.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (Result, error) {
	var (
		res Result
		err error
	)

	switch e := ev.(type) {
	case CheckoutCompleted:
		switch {
		case e.TenantID == "":
			res = Result{Outcome: model.BillingOutcomeUnmatched}
		case e.SubscriptionID == "":
			// Not a subscription checkout.
			res = Result{Outcome: model.BillingOutcomeIgnored, TenantID: e.TenantID}
		default:
			res, err = r.sync(ctx, e.SubscriptionID, e.TenantID)
		}

	case SubscriptionChanged:
		res, err = r.sync(ctx, e.SubscriptionID, e.TenantID)

	case UnrecognizedEvent:
		r.logger.Debug("ignoring billing event", slog.String("kind", e.Type), slog.String("event_id", e.EventID))
		res = Result{Outcome: model.BillingOutcomeIgnored}

	default:
		return Result{}, fmt.Errorf("%w: unsupported event type %T", ErrInvalidEvent, ev)
	}

	// Redelivery cannot resurrect an object the provider says does not exist.
	if err != nil && IsUnknownObject(err) {
		r.logger.Warn("billing event names an object unknown to the provider",
			slog.String("event_id", ev.ID()),
			slog.String("kind", ev.Kind()),
			slog.String("error", err.Error()),
		)
		res, err = Result{Outcome: model.BillingOutcomeUnmatched}, nil
	}

	outcome := string(res.Outcome)
	if err != nil {
		outcome = "error"
	}
	r.metrics.IncWebhookEvent(ev.Kind(), outcome)

	if err != nil {
		return Result{}, err
	}

	r.logger.Info("billing event reconciled",
		slog.String("event_id", ev.ID()),
		slog.String("kind", ev.Kind()),
		slog.String("tenant_id", res.TenantID),
		slog.String("outcome", outcome),
	)
	r.recordEvent(ctx, ev, res)
	return res, nil
}

// VerifyCheckout is the client-polled counterpart of the checkout webhook.
// It converges on the same record the webhook would write.
func (r *Reconciler) VerifyCheckout(ctx context.Context, sessionID, subjectID string) (Result, error) {
	cs, err := r.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if cs.TenantID != subjectID {
		return Result{}, ErrForbidden
	}
	if cs.Status != CheckoutComplete || cs.SubscriptionID == "" {
		return Result{Outcome: model.BillingOutcomePending, TenantID: subjectID}, nil
	}
	return r.sync(ctx, cs.SubscriptionID, subjectID)
}

// sync re-fetches subscriptionID and upserts it onto its tenant's profile.
// hint is the tenant named by the triggering event, if any.
func (r *Reconciler) sync(ctx context.Context, subscriptionID, hint string) (Result, error) {
	release, err := r.locker.Acquire(ctx, "subscription:"+subscriptionID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer release()

	ps, err := r.fetch(ctx, subscriptionID)
	if err != nil {
		return Result{}, err
	}

	tenantID, err := r.tenantFor(ctx, ps, hint)
	if err != nil {
		return Result{}, err
	}
	if tenantID == "" {
		r.logger.Warn("billing event matches no tenant",
			slog.String("subscription_id", subscriptionID),
			slog.String("customer_id", ps.CustomerID),
		)
		return Result{Outcome: model.BillingOutcomeUnmatched}, nil
	}

	record := ToRecord(ps)
	if err := record.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	current, err := r.store.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return Result{Outcome: model.BillingOutcomeUnmatched, TenantID: tenantID}, nil
		}
		return Result{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// A tenant that moved to a new subscription keeps it when events for the
	// old one arrive late.
	if superseded(current.Subscription, record) {
		return Result{Outcome: model.BillingOutcomeIgnored, TenantID: tenantID, Subscription: &current.Subscription}, nil
	}

	if err := r.store.UpsertSubscription(ctx, tenantID, record, r.now().UTC()); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return Result{Outcome: model.BillingOutcomeUnmatched, TenantID: tenantID}, nil
		}
		return Result{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return Result{Outcome: model.BillingOutcomeApplied, TenantID: tenantID, Subscription: &record}, nil
}

func (r *Reconciler) fetch(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	if r.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.FetchTimeout)
		defer cancel()
	}
	return r.provider.GetSubscription(ctx, subscriptionID)
}

// tenantFor locates the tenant owning ps: provider metadata first, then the
// event's hint, then stored subscription and customer ids.
func (r *Reconciler) tenantFor(ctx context.Context, ps *ProviderSubscription, hint string) (string, error) {
	if id := ps.Metadata[MetadataTenantKey]; id != "" {
		return id, nil
	}
	if hint != "" {
		return hint, nil
	}

	id, err := r.store.FindIDBySubscription(ctx, ps.ID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, profile.ErrNotFound) {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if ps.CustomerID == "" {
		return "", nil
	}
	id, err = r.store.FindIDByCustomer(ctx, ps.CustomerID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, profile.ErrNotFound) {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return "", nil
}

func superseded(current, incoming model.Subscription) bool {
	return current.SubscriptionID != "" &&
		current.SubscriptionID != incoming.SubscriptionID &&
		current.Status == model.SubscriptionStatusActive &&
		incoming.Status != model.SubscriptionStatusActive
}

// recordEvent appends the delivery to the audit log. Failures are logged only.
func (r *Reconciler) recordEvent(ctx context.Context, ev Event, res Result) {
	entry := &model.BillingEvent{
		ID:              ulid.MustNew(ulid.Timestamp(r.now()), rand.Reader).String(),
		ProviderEventID: ev.ID(),
		Kind:            ev.Kind(),
		TenantID:        res.TenantID,
		Outcome:         res.Outcome,
		ReceivedAt:      r.now().UTC(),
	}
	if res.Subscription != nil {
		entry.SubscriptionID = res.Subscription.SubscriptionID
		entry.Status = res.Subscription.Status
	}
	if err := r.store.RecordBillingEvent(ctx, entry); err != nil {
		r.logger.Warn("failed to record billing event",
			slog.String("event_id", ev.ID()),
			slog.String("error", err.Error()),
		)
	}
}

// CreateCheckout starts a subscription checkout for p on plan.
func (r *Reconciler) CreateCheckout(ctx context.Context, p *model.Profile, plan model.Plan) (*CheckoutSession, error) {
	priceID := r.cfg.Prices[plan]
	if !model.IsValidPlan(plan) || priceID == "" {
		return nil, ErrUnknownPlan
	}

	return r.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		TenantID:   p.ID,
		Email:      p.Email,
		CustomerID: p.Subscription.CustomerID,
		PriceID:    priceID,
		Plan:       string(plan),
		SuccessURL: r.cfg.BaseURL + "/dashboard/billing?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  r.cfg.BaseURL + "/dashboard/billing?canceled=1",
	})
}

// CreatePortal opens the billing portal for p's customer.
func (r *Reconciler) CreatePortal(ctx context.Context, p *model.Profile) (string, error) {
	if p.Subscription.CustomerID == "" {
		return "", ErrNoCustomer
	}
	return r.provider.CreatePortalSession(ctx, p.Subscription.CustomerID, r.cfg.BaseURL+"/dashboard/billing")
}
