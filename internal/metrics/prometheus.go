package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scholarsite"

// PrometheusRecorder exports metrics through its own Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	gateDecisions     *prometheus.CounterVec
	tenantResolutions *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	providerCalls     *prometheus.CounterVec
	providerDuration  *prometheus.HistogramVec
	openalexCache     *prometheus.CounterVec
}

// NewPrometheus creates a PrometheusRecorder with Go runtime and process collectors.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()

	p := &PrometheusRecorder{
		registry: reg,
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Request gate decisions by outcome.",
		}, []string{"decision"}),
		tenantResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_resolutions_total",
			Help:      "Public-site tenant resolutions by tier.",
		}, []string{"tier"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_webhook_events_total",
			Help:      "Billing webhook deliveries by event kind and outcome.",
		}, []string{"kind", "outcome"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Outbound provider calls by provider, operation and status.",
		}, []string{"provider", "op", "status"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of outbound provider calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "op"}),
		openalexCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "openalex_cache_requests_total",
			Help:      "OpenAlex response cache lookups by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.gateDecisions,
		p.tenantResolutions,
		p.webhookEvents,
		p.providerCalls,
		p.providerDuration,
		p.openalexCache,
	)

	return p
}

// Handler serves the registry in Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusRecorder) IncGateDecision(decision string) {
	p.gateDecisions.WithLabelValues(decision).Inc()
}

func (p *PrometheusRecorder) IncTenantResolution(tier string) {
	p.tenantResolutions.WithLabelValues(tier).Inc()
}

func (p *PrometheusRecorder) IncWebhookEvent(kind, outcome string) {
	p.webhookEvents.WithLabelValues(kind, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveProviderCall(provider, op string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.providerCalls.WithLabelValues(provider, op, status).Inc()
	p.providerDuration.WithLabelValues(provider, op).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncOpenAlexCacheHit() {
	p.openalexCache.WithLabelValues("hit").Inc()
}

func (p *PrometheusRecorder) IncOpenAlexCacheMiss() {
	p.openalexCache.WithLabelValues("miss").Inc()
}
