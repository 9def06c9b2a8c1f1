// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package agenthive

import (
	"context"
	"time"

	"github.com/agenthive/agenthive/internal/routing"
)

// Builder assembles an embedded router. Every option is optional: Build on
// a fresh builder yields a regex-first chain over the built-in rules with
// no classifier and no cache.
type Builder struct {
	order         Order
	rules         *RuleSet
	rulePackPath  string
	catalog       *Catalog
	classifier    Completer
	classifierCfg ClassifierConfig
	store         CacheStore
	ttl           time.Duration
	sink          MetricsSink
}

// NewBuilder returns a builder with the defaults described on Builder.
func NewBuilder() *Builder {
	return &Builder{order: OrderRegexFirst}
}

// WithOrder selects the chain's node walk order.
func (b *Builder) WithOrder(order Order) *Builder {
	b.order = order
	return b
}

// WithRules installs a custom rule set, replacing the built-in rules.
func (b *Builder) WithRules(rules *RuleSet) *Builder {
	b.rules = rules
	return b
}

// WithRulePack loads rules and catalog overrides from a rule-pack file at
// Build time. Explicit WithRules and WithCatalog values take precedence
// over the pack's.
func (b *Builder) WithRulePack(path string) *Builder {
	b.rulePackPath = path
	return b
}

// WithCatalog installs a custom agent catalog. The classifier renders it
// into its prompt.
func (b *Builder) WithCatalog(catalog *Catalog) *Builder {
	b.catalog = catalog
	return b
}

// WithClassifier enables the llm_router node, backed by the given
// completer. Zero-valued config fields fall back to the node's defaults.
func (b *Builder) WithClassifier(classifier Completer, cfg ClassifierConfig) *Builder {
	b.classifier = classifier
	b.classifierCfg = cfg
	return b
}

// WithCache puts a decision cache with the given store and entry TTL in
// front of the chain. The router closes the store on Close.
func (b *Builder) WithCache(store CacheStore, ttl time.Duration) *Builder {
	b.store = store
	b.ttl = ttl
	return b
}

// WithMemoryCache is WithCache over a process-local store holding up to
// entries decisions.
func (b *Builder) WithMemoryCache(entries int, ttl time.Duration) *Builder {
	return b.WithCache(NewMemoryCache(entries), ttl)
}

// WithMetricsSink attaches a sink to the chain and the decision cache.
func (b *Builder) WithMetricsSink(sink MetricsSink) *Builder {
	b.sink = sink
	return b
}

// Build assembles the router. It fails when the rule pack cannot be loaded
// or the order is unknown; an assembled router never fails at route time
// for configuration reasons.
func (b *Builder) Build() (*Router, error) {
	rules := b.rules
	catalog := b.catalog
	if b.rulePackPath != "" {
		pack, err := routing.LoadRulePack(b.rulePackPath)
		if err != nil {
			return nil, err
		}
		if rules == nil {
			rules = pack.Rules
		}
		if catalog == nil {
			catalog = pack.Catalog
		}
	}
	if rules == nil {
		rules = routing.DefaultRules()
	}
	if catalog == nil {
		catalog = routing.NewCatalog(nil)
	}

	var llm *routing.LLMNode
	if b.classifier != nil {
		llm = routing.NewLLMNode(b.classifier, catalog, b.classifierCfg)
	}

	chain, err := routing.NewChain(b.order, routing.NewRegexNode(rules), llm, routing.NewFallbackNode())
	if err != nil {
		return nil, err
	}
	if b.sink != nil {
		chain.SetMetricsSink(b.sink)
	}

	router := &Router{chain: chain, catalog: catalog, rules: rules}
	if b.store != nil && b.ttl > 0 {
		cached := routing.NewCachedRouter(chain, b.store, b.ttl)
		if b.sink != nil {
			cached.SetMetricsSink(b.sink)
		}
		router.cached = cached
		router.store = b.store
	}
	return router, nil
}

// Router is an assembled routing chain plus its optional decision cache.
// It is safe for concurrent use.
type Router struct {
	chain   *routing.Chain
	cached  *routing.CachedRouter
	store   CacheStore
	catalog *Catalog
	rules   *RuleSet
}

// Route resolves one request to an agent. The decision cache, when
// configured, is consulted first.
func (r *Router) Route(ctx context.Context, req *RequestContext) (*RoutingResult, error) {
	if r.cached != nil {
		return r.cached.Route(ctx, req)
	}
	return r.chain.Route(ctx, req)
}

// Nodes returns the chain's node names in walk order.
func (r *Router) Nodes() []string {
	return r.chain.NodeNames()
}

// Rules returns the rule set the router was built with.
func (r *Router) Rules() *RuleSet {
	return r.rules
}

// Catalog returns the agent catalog the router was built with.
func (r *Router) Catalog() *Catalog {
	return r.catalog
}

// CacheStats reports the decision cache's layer sizes. The zero value means
// no cache is configured.
func (r *Router) CacheStats(ctx context.Context) CacheStats {
	if r.cached == nil {
		return CacheStats{}
	}
	return r.cached.Stats(ctx)
}

// InvalidateCache drops every cached decision. A router without a cache
// ignores the call.
func (r *Router) InvalidateCache(ctx context.Context) {
	if r.cached != nil {
		r.cached.InvalidateAll(ctx)
	}
}

// Close releases the cache store, if one was configured.
func (r *Router) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}
