// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"github.com/agenthive/agenthive/internal/cache"
	"github.com/agenthive/agenthive/internal/metrics"
)

// cacheKeyPrefix namespaces routing decisions inside shared backends, so a
// cache table can hold other payloads without key collisions.
const cacheKeyPrefix = "route:"

// NormalizePrompt folds a prompt into its cache-canonical form: lowercased,
// trimmed, with internal whitespace runs collapsed to single spaces.
// "What is my  lease?" and "what is my lease?" share one cache entry.
func NormalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// CacheKey derives the decision-cache key for a prompt. Keys are global,
// not per session: identical prompts from different users reuse the same
// decision. The key carries a hash, never the prompt text itself.
func CacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(NormalizePrompt(prompt)))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// CachedRouter decorates a Router with the routing decision cache. Hits
// skip the chain entirely; misses run it and store the outcome. Cache
// failures of any kind degrade to misses, never to request failures.
type CachedRouter struct {
	inner Router
	store cache.Store
	ttl   time.Duration

	enabled atomic.Bool
	metrics metrics.Sink
	tracer  Tracer
}

// NewCachedRouter wraps inner with the decision cache. A nil store or
// non-positive ttl yields a transparent wrapper that always consults the
// chain.
func NewCachedRouter(inner Router, store cache.Store, ttl time.Duration) *CachedRouter {
	c := &CachedRouter{
		inner:   inner,
		store:   store,
		ttl:     ttl,
		metrics: metrics.NewNop(),
		tracer:  NopTracer{},
	}
	c.enabled.Store(true)
	return c
}

// SetMetricsSink replaces the default no-op sink.
func (c *CachedRouter) SetMetricsSink(sink metrics.Sink) {
	if sink != nil {
		c.metrics = sink
	}
}

// SetTracer replaces the default no-op tracer.
func (c *CachedRouter) SetTracer(tracer Tracer) {
	if tracer != nil {
		c.tracer = tracer
	}
}

// SetEnabled toggles the cache at runtime. Disabling does not flush stored
// entries; they simply stop being consulted, which is what accuracy test
// runs need.
func (c *CachedRouter) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// Enabled reports whether lookups are active.
func (c *CachedRouter) Enabled() bool {
	return c.enabled.Load() && c.store != nil && c.ttl > 0
}

// TTL returns the configured entry lifetime.
func (c *CachedRouter) TTL() time.Duration {
	return c.ttl
}

// Stats reports the underlying store's layer sizes.
func (c *CachedRouter) Stats(ctx context.Context) cache.Stats {
	if c.store == nil {
		return cache.Stats{}
	}
	return c.store.Stats(ctx)
}

// InvalidateAll drops every cached decision. Called when rule packs or
// provider wiring change between restarts would leave stale assignments.
func (c *CachedRouter) InvalidateAll(ctx context.Context) {
	if c.store == nil {
		return
	}
	c.store.Flush(ctx)
	c.tracer.Trace(TraceEvent{Kind: TraceCacheFlush, Timestamp: time.Now()})
	log.Info("Routing decision cache invalidated")
}

// Route serves the request from the cache when possible, otherwise runs
// the inner router and stores its decision.
func (c *CachedRouter) Route(ctx context.Context, req *RequestContext) (*RoutingResult, error) {
	if !c.Enabled() {
		return c.inner.Route(ctx, req)
	}

	start := time.Now()
	key := CacheKey(req.Prompt)

	if payload, ok := c.store.Get(ctx, key); ok {
		if result, err := decodeCachedResult(payload); err == nil {
			result.Metadata["cache_hit"] = true
			latency := time.Since(start)
			c.metrics.RecordRouting(string(result.Method), string(result.SelectedAgent()), result.Confidence, latency, true)
			c.tracer.Trace(TraceEvent{
				Kind:       TraceCacheHit,
				RequestID:  req.RequestID,
				SessionID:  req.SessionID,
				Method:     result.Method,
				Agent:      result.SelectedAgent(),
				Intent:     result.Intent,
				Confidence: result.Confidence,
				LatencyMs:  latency.Milliseconds(),
				Timestamp:  time.Now(),
			})
			log.WithFields(log.Fields{
				"request_id": req.RequestID,
				"method":     string(result.Method),
			}).Debug("Decision cache hit")
			return result, nil
		}
		log.WithFields(log.Fields{
			"request_id": req.RequestID,
		}).Warn("Corrupt decision cache entry, re-routing")
	}

	result, err := c.inner.Route(ctx, req)
	if err != nil {
		return nil, err
	}

	if payload, encErr := encodeCachedResult(result); encErr == nil {
		c.store.Set(ctx, key, payload, c.ttl)
		c.tracer.Trace(TraceEvent{
			Kind:      TraceCacheStore,
			RequestID: req.RequestID,
			SessionID: req.SessionID,
			Method:    result.Method,
			Agent:     result.SelectedAgent(),
			Timestamp: time.Now(),
		})
	} else {
		log.WithFields(log.Fields{
			"request_id": req.RequestID,
		}).Warnf("Failed to encode routing decision for cache: %v", encErr)
	}
	return result, nil
}

// encodeCachedResult serializes a decision and stamps the storage time
// into its metadata, so cached copies are self-describing.
func encodeCachedResult(result *RoutingResult) ([]byte, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(payload, "metadata.cached_at", time.Now().UTC().Format(time.RFC3339))
}

func decodeCachedResult(payload []byte) (*RoutingResult, error) {
	var result RoutingResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, err
	}
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	if result.Entities == nil {
		result.Entities = map[string]any{}
	}
	return &result, nil
}

var _ Router = (*CachedRouter)(nil)
