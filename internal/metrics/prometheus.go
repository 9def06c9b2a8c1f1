package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromSink exports routing observations to a Prometheus registry. It is
// constructed against an explicit registerer so tests can use a private
// registry instead of the process-wide default.
type PromSink struct {
	routingTotal     *prometheus.CounterVec
	routingLatency   *prometheus.HistogramVec
	confidence       *prometheus.HistogramVec
	classifierErrors *prometheus.CounterVec
	cacheEvents      *prometheus.CounterVec
	cacheEvictions   *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	circuitState     *prometheus.GaugeVec
}

// NewPromSink registers the router metric families with reg. Pass
// prometheus.DefaultRegisterer to serve them from the standard /metrics
// handler.
func NewPromSink(reg prometheus.Registerer) *PromSink {
	factory := promauto.With(reg)
	return &PromSink{
		routingTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agenthive_routing_total",
			Help: "Routed requests by deciding method, selected agent, and cache outcome",
		}, []string{"method", "agent", "cache"}),
		routingLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agenthive_routing_latency_seconds",
			Help:    "End-to-end routing latency by deciding method",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		confidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agenthive_routing_confidence",
			Help:    "Confidence of routing decisions by method",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"method"}),
		classifierErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agenthive_classifier_errors_total",
			Help: "LLM classification failures by kind",
		}, []string{"kind"}),
		cacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agenthive_cache_lookups_total",
			Help: "Cache lookups by layer and outcome",
		}, []string{"layer", "outcome"}),
		cacheEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agenthive_cache_evictions_total",
			Help: "Cache evictions by layer",
		}, []string{"layer"}),
		providerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agenthive_provider_calls_total",
			Help: "Upstream LLM calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		providerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agenthive_provider_latency_seconds",
			Help:    "Upstream LLM call latency by provider",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider"}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agenthive_circuit_state",
			Help: "Circuit breaker state per provider (0 closed, 0.5 half_open, 1 open)",
		}, []string{"provider"}),
	}
}

func (p *PromSink) RecordRouting(method, agent string, confidence float64, latency time.Duration, cacheHit bool) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	p.routingTotal.WithLabelValues(method, agent, cache).Inc()
	p.routingLatency.WithLabelValues(method).Observe(latency.Seconds())
	p.confidence.WithLabelValues(method).Observe(confidence)
}

func (p *PromSink) RecordClassifierError(kind string) {
	p.classifierErrors.WithLabelValues(kind).Inc()
}

func (p *PromSink) RecordCacheEvent(layer string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	p.cacheEvents.WithLabelValues(layer, outcome).Inc()
}

func (p *PromSink) RecordCacheEviction(layer string) {
	p.cacheEvictions.WithLabelValues(layer).Inc()
}

func (p *PromSink) RecordProviderCall(provider string, success bool, latency time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	p.providerCalls.WithLabelValues(provider, outcome).Inc()
	p.providerLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

func (p *PromSink) RecordCircuitTransition(provider, state string) {
	var value float64
	switch state {
	case "open":
		value = 1
	case "half_open":
		value = 0.5
	}
	p.circuitState.WithLabelValues(provider).Set(value)
}

var _ Sink = (*PromSink)(nil)
