package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	t.Parallel()

	p := NewPrometheus()
	p.IncGateDecision(GateLoginRedirect)
	p.IncGateDecision(GateLoginRedirect)
	p.IncWebhookEvent("customer.subscription.updated", "applied")
	p.ObserveProviderCall("stripe", "subscription.get", 20*time.Millisecond, nil)
	p.ObserveProviderCall("stripe", "subscription.get", 20*time.Millisecond, errors.New("boom"))
	p.IncOpenAlexCacheHit()

	if got := testutil.ToFloat64(p.gateDecisions.WithLabelValues(GateLoginRedirect)); got != 2 {
		t.Errorf("gate decisions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.providerCalls.WithLabelValues("stripe", "subscription.get", "error")); got != 1 {
		t.Errorf("provider errors = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"scholarsite_gate_decisions_total",
		"scholarsite_billing_webhook_events_total",
		"scholarsite_openalex_cache_requests_total",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}

func TestInMemoryRecorder(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncGateDecision(GatePublic)
	m.IncTenantResolution("basic")
	m.IncWebhookEvent("checkout.session.completed", "applied")
	m.ObserveProviderCall("stripe", "checkout.get", time.Millisecond, errors.New("x"))
	m.IncOpenAlexCacheMiss()

	s := m.Snapshot()
	if s.GateDecisions[GatePublic] != 1 || s.TenantResolutions["basic"] != 1 {
		t.Errorf("snapshot = %+v", s)
	}
	if s.WebhookEvents["checkout.session.completed/applied"] != 1 {
		t.Errorf("webhook events = %v", s.WebhookEvents)
	}
	if s.ProviderFailures["stripe/checkout.get"] != 1 || s.OpenAlexCacheMiss != 1 {
		t.Errorf("provider failures = %v, misses = %d", s.ProviderFailures, s.OpenAlexCacheMiss)
	}

	// Snapshots are copies.
	s.GateDecisions[GatePublic] = 99
	if m.Snapshot().GateDecisions[GatePublic] != 1 {
		t.Error("Snapshot() should not alias internal state")
	}
}
