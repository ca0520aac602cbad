// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Gate decisions.
const (
	GateLoginRedirect     = "login_redirect"
	GateDashboardRedirect = "dashboard_redirect"
	GateProtected         = "protected"
	GatePublic            = "public"
	GatePassThrough       = "pass_through"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory.
type Recorder interface {
	// Request gate metrics
	IncGateDecision(decision string)
	IncTenantResolution(tier string) // tier: "basic", "premium", "none"

	// Billing metrics
	IncWebhookEvent(kind, outcome string)
	ObserveProviderCall(provider, op string, duration time.Duration, err error)

	// OpenAlex cache metrics
	IncOpenAlexCacheHit()
	IncOpenAlexCacheMiss()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
