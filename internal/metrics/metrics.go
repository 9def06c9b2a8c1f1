// Package metrics provides observability sinks for the router chain and
// its collaborators. The chain records what it decided, the caches record
// hits and misses, and the balancer records provider health; sinks are
// injected explicitly so tests can run against a no-op.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives routing observations. Implementations must be safe for
// concurrent use; every record call sits on the request path.
type Sink interface {
	// RecordRouting is called once per resolved request with the node
	// method that decided, the chosen agent, and the end-to-end latency.
	RecordRouting(method, agent string, confidence float64, latency time.Duration, cacheHit bool)
	// RecordClassifierError counts LLM classification failures by kind
	// (provider_error, malformed_response).
	RecordClassifierError(kind string)
	// RecordCacheEvent counts lookups per cache layer.
	RecordCacheEvent(layer string, hit bool)
	// RecordCacheEviction counts entries pushed out of a layer.
	RecordCacheEviction(layer string)
	// RecordProviderCall counts upstream LLM calls and their latency.
	RecordProviderCall(provider string, success bool, latency time.Duration)
	// RecordCircuitTransition records a breaker state change.
	RecordCircuitTransition(provider, state string)
}

// Nop discards everything. It is the default sink wherever none is wired.
type Nop struct{}

// NewNop returns a sink that does nothing.
func NewNop() Sink { return Nop{} }

func (Nop) RecordRouting(string, string, float64, time.Duration, bool) {}

func (Nop) RecordClassifierError(kind string) {}

func (Nop) RecordCacheEvent(layer string, hit bool) {}

func (Nop) RecordCacheEviction(layer string) {}

func (Nop) RecordProviderCall(provider string, success bool, latency time.Duration) {}

func (Nop) RecordCircuitTransition(provider, state string) {}

var _ Sink = Nop{}

// Multi fans every record out to several sinks, letting the in-process
// collector and the Prometheus exporter observe the same stream.
type Multi []Sink

// NewMulti combines sinks. Nil entries are dropped.
func NewMulti(sinks ...Sink) Sink {
	var out Multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m Multi) RecordRouting(method, agent string, confidence float64, latency time.Duration, cacheHit bool) {
	for _, s := range m {
		s.RecordRouting(method, agent, confidence, latency, cacheHit)
	}
}

func (m Multi) RecordClassifierError(kind string) {
	for _, s := range m {
		s.RecordClassifierError(kind)
	}
}

func (m Multi) RecordCacheEvent(layer string, hit bool) {
	for _, s := range m {
		s.RecordCacheEvent(layer, hit)
	}
}

func (m Multi) RecordCacheEviction(layer string) {
	for _, s := range m {
		s.RecordCacheEviction(layer)
	}
}

func (m Multi) RecordProviderCall(provider string, success bool, latency time.Duration) {
	for _, s := range m {
		s.RecordProviderCall(provider, success, latency)
	}
}

func (m Multi) RecordCircuitTransition(provider, state string) {
	for _, s := range m {
		s.RecordCircuitTransition(provider, state)
	}
}

// Collector accumulates routing statistics in memory for the stats API.
// Counters on the hot path are atomics; the keyed breakdowns share one
// mutex since their cardinality is small.
type Collector struct {
	startTime time.Time

	totalRequests  atomic.Int64
	cacheHits      atomic.Int64
	regexRoutes    atomic.Int64
	llmRoutes      atomic.Int64
	fallbackRoutes atomic.Int64

	mu               sync.RWMutex
	agentCounts      map[string]int64
	classifierErrors map[string]int64
	cacheLayers      map[string]*layerCounters
	providers        map[string]*providerCounters
	circuitStates    map[string]string
	confidenceSum    float64
	confidenceCount  int64
	latencySamples   []float64
	maxSamples       int
}

type layerCounters struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

type providerCounters struct {
	Calls     int64
	Failures  int64
	LatencyMs []float64
}

// defaultSampleSize bounds the latency sample buffers when the caller
// passes zero.
const defaultSampleSize = 1000

// NewCollector creates a collector keeping at most sampleSize latency
// samples per series.
func NewCollector(sampleSize int) *Collector {
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	return &Collector{
		startTime:        time.Now(),
		agentCounts:      make(map[string]int64),
		classifierErrors: make(map[string]int64),
		cacheLayers:      make(map[string]*layerCounters),
		providers:        make(map[string]*providerCounters),
		circuitStates:    make(map[string]string),
		maxSamples:       sampleSize,
	}
}

func (c *Collector) RecordRouting(method, agent string, confidence float64, latency time.Duration, cacheHit bool) {
	c.totalRequests.Add(1)
	if cacheHit {
		c.cacheHits.Add(1)
	}
	switch method {
	case "regex":
		c.regexRoutes.Add(1)
	case "llm_router":
		c.llmRoutes.Add(1)
	case "fallback":
		c.fallbackRoutes.Add(1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentCounts[agent]++
	c.confidenceSum += confidence
	c.confidenceCount++
	if len(c.latencySamples) >= c.maxSamples {
		c.latencySamples = c.latencySamples[1:]
	}
	c.latencySamples = append(c.latencySamples, float64(latency.Milliseconds()))
}

func (c *Collector) RecordClassifierError(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classifierErrors[kind]++
}

func (c *Collector) RecordCacheEvent(layer string, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lc := c.layerLocked(layer)
	if hit {
		lc.Hits++
	} else {
		lc.Misses++
	}
}

func (c *Collector) RecordCacheEviction(layer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layerLocked(layer).Evictions++
}

func (c *Collector) RecordProviderCall(provider string, success bool, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.providers[provider]
	if !ok {
		pc = &providerCounters{}
		c.providers[provider] = pc
	}
	pc.Calls++
	if !success {
		pc.Failures++
	}
	if len(pc.LatencyMs) >= c.maxSamples {
		pc.LatencyMs = pc.LatencyMs[1:]
	}
	pc.LatencyMs = append(pc.LatencyMs, float64(latency.Milliseconds()))
}

func (c *Collector) RecordCircuitTransition(provider, state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.circuitStates[provider] = state
}

func (c *Collector) layerLocked(layer string) *layerCounters {
	lc, ok := c.cacheLayers[layer]
	if !ok {
		lc = &layerCounters{}
		c.cacheLayers[layer] = lc
	}
	return lc
}

// LatencyStats summarizes a latency sample buffer in milliseconds.
type LatencyStats struct {
	Count int64   `json:"count"`
	MinMs float64 `json:"min_ms"`
	AvgMs float64 `json:"avg_ms"`
	MaxMs float64 `json:"max_ms"`
}

// LayerSnapshot is the per-cache-layer view in a snapshot.
type LayerSnapshot struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// ProviderSnapshot is the per-provider view in a snapshot.
type ProviderSnapshot struct {
	Calls    int64        `json:"calls"`
	Failures int64        `json:"failures"`
	Latency  LatencyStats `json:"latency"`
}

// Snapshot is a point-in-time copy of everything the collector has seen,
// shaped for JSON responses.
type Snapshot struct {
	UptimeSeconds    float64                     `json:"uptime_seconds"`
	TotalRequests    int64                       `json:"total_requests"`
	CacheHits        int64                       `json:"cache_hits"`
	CacheHitRate     float64                     `json:"cache_hit_rate"`
	ByMethod         map[string]int64            `json:"by_method"`
	ByAgent          map[string]int64            `json:"by_agent"`
	ClassifierErrors map[string]int64            `json:"classifier_errors,omitempty"`
	CacheLayers      map[string]LayerSnapshot    `json:"cache_layers,omitempty"`
	Providers        map[string]ProviderSnapshot `json:"providers,omitempty"`
	CircuitStates    map[string]string           `json:"circuit_states,omitempty"`
	AvgConfidence    float64                     `json:"avg_confidence"`
	Latency          LatencyStats                `json:"latency"`
}

// Snapshot returns a consistent copy of the collected statistics.
func (c *Collector) Snapshot() Snapshot {
	total := c.totalRequests.Load()
	hits := c.cacheHits.Load()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		TotalRequests: total,
		CacheHits:     hits,
		ByMethod: map[string]int64{
			"regex":      c.regexRoutes.Load(),
			"llm_router": c.llmRoutes.Load(),
			"fallback":   c.fallbackRoutes.Load(),
		},
		ByAgent:          map[string]int64{},
		ClassifierErrors: map[string]int64{},
		CacheLayers:      map[string]LayerSnapshot{},
		Providers:        map[string]ProviderSnapshot{},
		CircuitStates:    map[string]string{},
	}
	if total > 0 {
		snap.CacheHitRate = float64(hits) / float64(total)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for agent, n := range c.agentCounts {
		snap.ByAgent[agent] = n
	}
	for kind, n := range c.classifierErrors {
		snap.ClassifierErrors[kind] = n
	}
	for layer, lc := range c.cacheLayers {
		ls := LayerSnapshot{Hits: lc.Hits, Misses: lc.Misses, Evictions: lc.Evictions}
		if lookups := lc.Hits + lc.Misses; lookups > 0 {
			ls.HitRate = float64(lc.Hits) / float64(lookups)
		}
		snap.CacheLayers[layer] = ls
	}
	for name, pc := range c.providers {
		snap.Providers[name] = ProviderSnapshot{
			Calls:    pc.Calls,
			Failures: pc.Failures,
			Latency:  summarize(pc.LatencyMs),
		}
	}
	for provider, state := range c.circuitStates {
		snap.CircuitStates[provider] = state
	}
	if c.confidenceCount > 0 {
		snap.AvgConfidence = c.confidenceSum / float64(c.confidenceCount)
	}
	snap.Latency = summarize(c.latencySamples)
	return snap
}

// Reset clears all counters, keeping the configured sample bound. Used by
// tests and the stats API's reset endpoint.
func (c *Collector) Reset() {
	c.totalRequests.Store(0)
	c.cacheHits.Store(0)
	c.regexRoutes.Store(0)
	c.llmRoutes.Store(0)
	c.fallbackRoutes.Store(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
	c.agentCounts = make(map[string]int64)
	c.classifierErrors = make(map[string]int64)
	c.cacheLayers = make(map[string]*layerCounters)
	c.providers = make(map[string]*providerCounters)
	c.circuitStates = make(map[string]string)
	c.confidenceSum = 0
	c.confidenceCount = 0
	c.latencySamples = nil
}

func summarize(samples []float64) LatencyStats {
	stats := LatencyStats{Count: int64(len(samples))}
	if len(samples) == 0 {
		return stats
	}
	stats.MinMs = samples[0]
	stats.MaxMs = samples[0]
	sum := 0.0
	for _, s := range samples {
		if s < stats.MinMs {
			stats.MinMs = s
		}
		if s > stats.MaxMs {
			stats.MaxMs = s
		}
		sum += s
	}
	stats.AvgMs = sum / float64(len(samples))
	return stats
}
