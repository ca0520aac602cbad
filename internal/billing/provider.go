package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Provider is the billing provider's API as the reconciler needs it.
type Provider interface {
	GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// ProviderSubscription is the provider-confirmed state of a subscription.
type ProviderSubscription struct {
	ID                string
	CustomerID        string
	Status            string
	Interval          string // "month" or "year"
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	Metadata          map[string]string
}

// Checkout session states.
const (
	CheckoutOpen     = "open"
	CheckoutComplete = "complete"
	CheckoutExpired  = "expired"
)

// CheckoutSession is a hosted checkout session.
type CheckoutSession struct {
	ID             string
	URL            string
	Status         string
	TenantID       string
	CustomerID     string
	SubscriptionID string
}

// CheckoutRequest describes a subscription checkout to create.
type CheckoutRequest struct {
	TenantID   string
	Email      string
	CustomerID string
	PriceID    string
	Plan       string
	SuccessURL string
	CancelURL  string
}

// ProviderError is a failed call to the billing provider.
type ProviderError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("billing provider %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("billing provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsUnknownObject reports whether the provider definitively refused the object
// a call named: it does not exist, is gone, or the id is malformed. Asking
// again returns the same answer. Credential failures (401, 403) are excluded
// because fixing the key makes the same request succeed.
func IsUnknownObject(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Retryable {
		return false
	}
	switch pe.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusGone:
		return true
	}
	return false
}

// IsRetryable reports whether err is a provider failure worth retrying,
// such as a timeout, rate limit or 5xx.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}
