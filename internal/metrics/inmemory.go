package metrics

import (
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	GateDecisions      map[string]uint64
	TenantResolutions  map[string]uint64
	WebhookEvents      map[string]uint64 // keyed by "kind/outcome"
	ProviderCalls      map[string]uint64 // keyed by "provider/op"
	ProviderFailures   map[string]uint64
	OpenAlexCacheHits  uint64
	OpenAlexCacheMiss  uint64
	ProviderDurationNs int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{snap: Snapshot{
		GateDecisions:     make(map[string]uint64),
		TenantResolutions: make(map[string]uint64),
		WebhookEvents:     make(map[string]uint64),
		ProviderCalls:     make(map[string]uint64),
		ProviderFailures:  make(map[string]uint64),
	}}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.snap
	s.GateDecisions = copyCounts(m.snap.GateDecisions)
	s.TenantResolutions = copyCounts(m.snap.TenantResolutions)
	s.WebhookEvents = copyCounts(m.snap.WebhookEvents)
	s.ProviderCalls = copyCounts(m.snap.ProviderCalls)
	s.ProviderFailures = copyCounts(m.snap.ProviderFailures)
	return s
}

// IncGateDecision counts a gate decision.
func (m *InMemoryRecorder) IncGateDecision(decision string) {
	m.mu.Lock()
	m.snap.GateDecisions[decision]++
	m.mu.Unlock()
}

// IncTenantResolution counts a tenant resolution by tier.
func (m *InMemoryRecorder) IncTenantResolution(tier string) {
	m.mu.Lock()
	m.snap.TenantResolutions[tier]++
	m.mu.Unlock()
}

// IncWebhookEvent counts a handled webhook delivery.
func (m *InMemoryRecorder) IncWebhookEvent(kind, outcome string) {
	m.mu.Lock()
	m.snap.WebhookEvents[kind+"/"+outcome]++
	m.mu.Unlock()
}

// ObserveProviderCall records an outbound provider call.
func (m *InMemoryRecorder) ObserveProviderCall(provider, op string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + "/" + op
	m.snap.ProviderCalls[key]++
	if err != nil {
		m.snap.ProviderFailures[key]++
	}
	m.snap.ProviderDurationNs += duration.Nanoseconds()
}

// IncOpenAlexCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncOpenAlexCacheHit() {
	m.mu.Lock()
	m.snap.OpenAlexCacheHits++
	m.mu.Unlock()
}

// IncOpenAlexCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncOpenAlexCacheMiss() {
	m.mu.Lock()
	m.snap.OpenAlexCacheMiss++
	m.mu.Unlock()
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
