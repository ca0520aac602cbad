// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import "github.com/scholarsite/scholarsite/internal/model"

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// SessionRequest carries the ID token obtained by the client-side sign-in.
type SessionRequest struct {
	IDToken string `json:"id_token"`
}

// SessionResponse is returned after a successful sign-in.
type SessionResponse struct {
	Profile *model.Profile `json:"profile"`
	Created bool           `json:"created"`
}

// CheckoutRequest selects the plan to subscribe to.
type CheckoutRequest struct {
	Plan model.Plan `json:"plan"`
}

// CheckoutResponse points the client at the hosted checkout page.
type CheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// CheckoutStatusResponse reports the outcome of a polled checkout verification.
type CheckoutStatusResponse struct {
	Status       string              `json:"status"`
	Subscription *model.Subscription `json:"subscription,omitempty"`
}

// PortalResponse carries the billing portal URL.
type PortalResponse struct {
	URL string `json:"url"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// AuthorsResponse lists author candidates.
type AuthorsResponse struct {
	Data []model.Author `json:"data"`
}

// DashboardResponse is the signed-in owner's dashboard payload.
type DashboardResponse struct {
	Profile      *model.Profile     `json:"profile"`
	Subscription model.Subscription `json:"subscription"`
	Published    bool               `json:"published"`
	SiteURL      string             `json:"site_url,omitempty"`
}

// AuthPageResponse describes the login and register pages.
type AuthPageResponse struct {
	Page     string `json:"page"`
	Redirect string `json:"redirect,omitempty"`
}

// LandingResponse is served on hosts that name no tenant.
type LandingResponse struct {
	Name           string   `json:"name"`
	PlatformDomain string   `json:"platform_domain"`
	Plans          []string `json:"plans"`
}
