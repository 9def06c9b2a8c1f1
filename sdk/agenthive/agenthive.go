// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package agenthive is the embedding surface for the AgentHive router. It
// re-exports the routing chain's types and hides the internal packages
// behind a builder, so external programs can classify prompts in-process
// without running the bundled server.
//
// A minimal embedding looks like:
//
//	router, err := agenthive.NewBuilder().
//		WithMemoryCache(256, 5*time.Minute).
//		Build()
//	if err != nil {
//		return err
//	}
//	defer router.Close()
//
//	result, err := router.Route(ctx, agenthive.NewRequestContext(prompt, sessionID))
//
// Without a classifier the chain runs regex rules and the fallback only.
// Plug in any Completer implementation (a provider pool, an in-process
// model, a test stub) to enable the llm_router node. See examples/advanced
// for a complete program.
package agenthive

import (
	"github.com/agenthive/agenthive/internal/cache"
	"github.com/agenthive/agenthive/internal/metrics"
	"github.com/agenthive/agenthive/internal/routing"
)

// Core routing types, aliased so embedders never import internal packages.
type (
	// AgentType names one of the specialist agents a prompt can route to.
	AgentType = routing.AgentType
	// RoutingMethod records which node decided a request.
	RoutingMethod = routing.RoutingMethod
	// Order selects the node walk order of the chain.
	Order = routing.Order
	// RequestContext carries one request through the chain.
	RequestContext = routing.RequestContext
	// RoutingResult is the outcome of routing a single request.
	RoutingResult = routing.RoutingResult
	// Message is one turn of conversation history.
	Message = routing.Message
	// Completer is the provider slice the classifier node calls.
	Completer = routing.Completer
	// CompletionRequest is a provider-agnostic chat completion request.
	CompletionRequest = routing.CompletionRequest
	// CompletionResponse is the provider-agnostic completion answer.
	CompletionResponse = routing.CompletionResponse
	// TokenUsage mirrors the usage block of OpenAI-compatible responses.
	TokenUsage = routing.TokenUsage
	// RoutingRule is one compiled pattern -> agent binding.
	RoutingRule = routing.RoutingRule
	// RuleSet is an ordered collection of routing rules.
	RuleSet = routing.RuleSet
	// RuleMatch is one rule hit with its match span.
	RuleMatch = routing.RuleMatch
	// RulePack is a parsed rule-pack file.
	RulePack = routing.RulePack
	// Catalog holds the description of every agent.
	Catalog = routing.Catalog
	// ClassifierConfig tunes the llm_router node.
	ClassifierConfig = routing.LLMNodeConfig
	// CacheStore backs the routing decision cache.
	CacheStore = cache.Store
	// CacheStats describes the current size of each cache layer.
	CacheStats = cache.Stats
	// MetricsSink receives routing, provider, and cache events.
	MetricsSink = metrics.Sink
	// MetricsCollector is the in-process MetricsSink with a stats snapshot.
	MetricsCollector = metrics.Collector
)

// The known agents. Routing never produces a value outside this set.
const (
	AgentLease   = routing.AgentLease
	AgentSales   = routing.AgentSales
	AgentSupport = routing.AgentSupport
	AgentGeneral = routing.AgentGeneral
	AgentHR      = routing.AgentHR
	AgentIT      = routing.AgentIT
	AgentFinance = routing.AgentFinance
)

// Chain orders.
const (
	OrderRegexFirst = routing.OrderRegexFirst
	OrderLLMFirst   = routing.OrderLLMFirst
)

// Routing methods, as reported in RoutingResult.Method.
const (
	MethodRegex    = routing.MethodRegex
	MethodLLM      = routing.MethodLLM
	MethodFallback = routing.MethodFallback
)

// NewRequestContext builds a request with a fresh request ID. Optional
// fields (UserID, History, Metadata) are set on the returned value before
// it is routed.
func NewRequestContext(prompt, sessionID string) *RequestContext {
	return routing.NewRequestContext(prompt, sessionID)
}

// ParseAgentType validates an agent name against the known set.
func ParseAgentType(s string) (AgentType, error) {
	return routing.ParseAgentType(s)
}

// AgentTypes returns every known agent in stable order.
func AgentTypes() []AgentType {
	return routing.AgentTypes()
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *RuleSet {
	return routing.DefaultRules()
}

// CompileRule builds a single routing rule. Lower priority values win when
// several rules match one prompt.
func CompileRule(pattern string, agent AgentType, intent string, priority int) (*RoutingRule, error) {
	return routing.CompileRule(pattern, agent, intent, priority)
}

// NewRuleSet builds a rule set from compiled rules, preserving registration
// order for tie-breaks.
func NewRuleSet(rules ...*RoutingRule) *RuleSet {
	return routing.NewRuleSet(rules...)
}

// LoadRulePack reads and compiles a rule-pack file.
func LoadRulePack(path string) (*RulePack, error) {
	return routing.LoadRulePack(path)
}

// ParseRulePack compiles rule-pack bytes, for packs that do not live on
// disk.
func ParseRulePack(data []byte) (*RulePack, error) {
	return routing.ParseRulePack(data)
}

// NewCatalog builds an agent catalog from the defaults plus the given
// description overrides.
func NewCatalog(overrides map[AgentType]string) *Catalog {
	return routing.NewCatalog(overrides)
}

// NewMemoryCache builds a process-local decision cache store holding up to
// entries decisions. It is the store WithMemoryCache installs; use it
// directly with WithCache when the same store should be shared.
func NewMemoryCache(entries int) CacheStore {
	return cache.NewLayered(cache.NewLRU(entries), nil, 0, nil)
}

// NewMetricsCollector builds the in-process metrics sink. sampleSize bounds
// the latency reservoir; zero uses the collector's default.
func NewMetricsCollector(sampleSize int) *MetricsCollector {
	return metrics.NewCollector(sampleSize)
}

// CacheKey derives the decision-cache key for a prompt, exposed for
// embedders that pre-warm or invalidate individual entries.
func CacheKey(prompt string) string {
	return routing.CacheKey(prompt)
}
