// Package billing keeps tenant subscription state in agreement with the
// billing provider. Webhook deliveries and client-polled checkout
// verification both converge on a re-fetch of provider state.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Event parsing errors.
var (
	ErrBadSignature = errors.New("webhook signature invalid")
	ErrInvalidEvent = errors.New("webhook event malformed")
)

// Stripe event kinds handled by the reconciler.
const (
	KindCheckoutCompleted    = "checkout.session.completed"
	KindCheckoutAsyncSuccess = "checkout.session.async_payment_succeeded"
	KindSubscriptionCreated  = "customer.subscription.created"
	KindSubscriptionUpdated  = "customer.subscription.updated"
	KindSubscriptionDeleted  = "customer.subscription.deleted"
	KindSubscriptionPaused   = "customer.subscription.paused"
	KindSubscriptionResumed  = "customer.subscription.resumed"
)

// MetadataTenantKey is the metadata key carrying the tenant id on checkout
// sessions and subscriptions.
const MetadataTenantKey = "userId"

// Event is a verified webhook event. The set of implementations is closed:
// CheckoutCompleted, SubscriptionChanged and UnrecognizedEvent.
type Event interface {
	// ID is the provider's event id.
	ID() string
	// Kind is the provider's event type string.
	Kind() string
	isEvent()
}

// CheckoutCompleted reports a finished checkout session, either completed
// directly or after a delayed payment succeeded.
type CheckoutCompleted struct {
	EventID string
	// Type is the delivered event type. Empty means KindCheckoutCompleted.
	Type           string
	SessionID      string
	TenantID       string
	CustomerID     string
	SubscriptionID string
}

// SubscriptionChanged reports any change to a subscription. The payload is
// only used to locate the subscription; its state is always re-fetched.
type SubscriptionChanged struct {
	EventID        string
	Type           string
	SubscriptionID string
	CustomerID     string
	TenantID       string
	Deleted        bool
}

// UnrecognizedEvent is any event kind the reconciler does not act on.
type UnrecognizedEvent struct {
	EventID string
	Type    string
}

func (e CheckoutCompleted) ID() string { return e.EventID }
func (CheckoutCompleted) isEvent()     {}

func (e CheckoutCompleted) Kind() string {
	if e.Type == "" {
		return KindCheckoutCompleted
	}
	return e.Type
}

func (e SubscriptionChanged) ID() string   { return e.EventID }
func (e SubscriptionChanged) Kind() string { return e.Type }
func (SubscriptionChanged) isEvent()       {}

func (e UnrecognizedEvent) ID() string   { return e.EventID }
func (e UnrecognizedEvent) Kind() string { return e.Type }
func (UnrecognizedEvent) isEvent()       {}

// DefaultTolerance is the accepted age of a webhook signature timestamp.
const DefaultTolerance = 5 * time.Minute

// Parser verifies and decodes webhook deliveries.
type Parser struct {
	secret    string
	tolerance time.Duration
}

// NewParser creates a Parser for the endpoint's signing secret.
func NewParser(secret string, tolerance time.Duration) *Parser {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Parser{secret: secret, tolerance: tolerance}
}

// Parse verifies the Stripe-Signature header over payload and decodes the
// event. Nothing in payload is trusted until the signature checks out.
func (p *Parser) Parse(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return decodeEvent(ev)
}

func decodeEvent(ev stripe.Event) (Event, error) {
	kind := string(ev.Type)

	switch kind {
	case KindCheckoutCompleted, KindCheckoutAsyncSuccess:
		var cs stripe.CheckoutSession
		if err := decodeObject(ev, &cs); err != nil {
			return nil, err
		}
		out := CheckoutCompleted{
			EventID:   ev.ID,
			Type:      kind,
			SessionID: cs.ID,
			TenantID:  cs.Metadata[MetadataTenantKey],
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
		return out, nil

	case KindSubscriptionCreated, KindSubscriptionUpdated, KindSubscriptionDeleted,
		KindSubscriptionPaused, KindSubscriptionResumed:
		var sub stripe.Subscription
		if err := decodeObject(ev, &sub); err != nil {
			return nil, err
		}
		if sub.ID == "" {
			return nil, fmt.Errorf("%w: subscription id missing", ErrInvalidEvent)
		}
		out := SubscriptionChanged{
			EventID:        ev.ID,
			Type:           kind,
			SubscriptionID: sub.ID,
			TenantID:       sub.Metadata[MetadataTenantKey],
			Deleted:        kind == KindSubscriptionDeleted,
		}
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		return out, nil

	default:
		return UnrecognizedEvent{EventID: ev.ID, Type: kind}, nil
	}
}

func decodeObject(ev stripe.Event, dst any) error {
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return fmt.Errorf("%w: event data missing", ErrInvalidEvent)
	}
	if err := json.Unmarshal(ev.Data.Raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}
