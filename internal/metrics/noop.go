package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncGateDecision is a no-op.
func (n *NoopRecorder) IncGateDecision(string) {}

// IncTenantResolution is a no-op.
func (n *NoopRecorder) IncTenantResolution(string) {}

// IncWebhookEvent is a no-op.
func (n *NoopRecorder) IncWebhookEvent(string, string) {}

// ObserveProviderCall is a no-op.
func (n *NoopRecorder) ObserveProviderCall(string, string, time.Duration, error) {}

// IncOpenAlexCacheHit is a no-op.
func (n *NoopRecorder) IncOpenAlexCacheHit() {}

// IncOpenAlexCacheMiss is a no-op.
func (n *NoopRecorder) IncOpenAlexCacheMiss() {}
