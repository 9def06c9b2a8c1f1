// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package routing implements the AgentHive router chain. The chain walks a
// fixed set of nodes (Regex Matcher → LLM Classifier → Fallback, order
// configurable) until one of them produces a routing result, and guarantees
// that every request resolves to exactly one agent.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AgentType identifies a specialist agent that can receive routed requests.
// The set is closed: adding an agent means adding a constant here plus a
// catalog description, not registering a plugin at runtime.
type AgentType string

const (
	AgentLease   AgentType = "lease"
	AgentSales   AgentType = "sales"
	AgentSupport AgentType = "support"
	AgentGeneral AgentType = "general"
	AgentHR      AgentType = "hr"
	AgentIT      AgentType = "it"
	AgentFinance AgentType = "finance"
)

// AgentTypes returns every known agent type in stable order.
func AgentTypes() []AgentType {
	return []AgentType{
		AgentLease,
		AgentSales,
		AgentSupport,
		AgentGeneral,
		AgentHR,
		AgentIT,
		AgentFinance,
	}
}

// Valid reports whether a is one of the known agent types.
func (a AgentType) Valid() bool {
	switch a {
	case AgentLease, AgentSales, AgentSupport, AgentGeneral, AgentHR, AgentIT, AgentFinance:
		return true
	}
	return false
}

// ParseAgentType converts a free-form string (typically produced by an LLM)
// into an AgentType. Matching is case-insensitive and ignores surrounding
// whitespace. Unknown values return an error rather than being coerced.
func ParseAgentType(s string) (AgentType, error) {
	candidate := AgentType(strings.ToLower(strings.TrimSpace(s)))
	if candidate.Valid() {
		return candidate, nil
	}
	return "", fmt.Errorf("unknown agent type %q", s)
}

// RoutingMethod records which node of the chain produced a result.
type RoutingMethod string

const (
	MethodRegex    RoutingMethod = "regex"
	MethodLLM      RoutingMethod = "llm_router"
	MethodFallback RoutingMethod = "fallback"
)

// Message is a single turn of conversation history handed to the router.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestContext carries one request through the chain. It is built once per
// request and treated as read-only by every node; nodes that need to attach
// information do so on the RoutingResult, never here.
type RequestContext struct {
	Prompt    string         `json:"prompt"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id,omitempty"`
	RequestID string         `json:"request_id"`
	History   []Message      `json:"conversation_history,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewRequestContext builds a RequestContext with a fresh request ID. Optional
// fields (UserID, History, Metadata) are set by the caller before the context
// enters the chain.
func NewRequestContext(prompt, sessionID string) *RequestContext {
	return &RequestContext{
		Prompt:    prompt,
		SessionID: sessionID,
		RequestID: uuid.NewString(),
		Metadata:  map[string]any{},
	}
}

// RoutingResult is the outcome of routing a single request: the classified
// intent, the chain's confidence in it, the node that decided, and the agent
// the request should be handed to (under the "selected_agent" metadata key).
type RoutingResult struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Method     RoutingMethod  `json:"routing_method"`
	Entities   map[string]any `json:"entities,omitempty"`
	Metadata   map[string]any `json:"metadata"`
}

// NewRoutingResult builds a result for the given agent. Confidence is clamped
// to [0, 1] so callers can trust the range without re-checking.
func NewRoutingResult(agent AgentType, intent string, confidence float64, method RoutingMethod) *RoutingResult {
	return &RoutingResult{
		Intent:     intent,
		Confidence: clampConfidence(confidence),
		Method:     method,
		Entities:   map[string]any{},
		Metadata: map[string]any{
			"selected_agent": string(agent),
		},
	}
}

// SelectedAgent returns the agent recorded in the result metadata, or
// AgentGeneral if the entry is missing or malformed.
func (r *RoutingResult) SelectedAgent() AgentType {
	if r == nil || r.Metadata == nil {
		return AgentGeneral
	}
	raw, ok := r.Metadata["selected_agent"].(string)
	if !ok {
		return AgentGeneral
	}
	agent, err := ParseAgentType(raw)
	if err != nil {
		return AgentGeneral
	}
	return agent
}

// CacheHit reports whether this result was served from the decision cache.
func (r *RoutingResult) CacheHit() bool {
	if r == nil || r.Metadata == nil {
		return false
	}
	hit, ok := r.Metadata["cache_hit"].(bool)
	return ok && hit
}

// Clone returns a deep copy of the result. Cached results are cloned before
// they are handed out so callers can mutate metadata freely.
func (r *RoutingResult) Clone() *RoutingResult {
	if r == nil {
		return nil
	}
	clone := &RoutingResult{
		Intent:     r.Intent,
		Confidence: r.Confidence,
		Method:     r.Method,
		Entities:   make(map[string]any, len(r.Entities)),
		Metadata:   make(map[string]any, len(r.Metadata)),
	}
	for k, v := range r.Entities {
		clone.Entities[k] = v
	}
	for k, v := range r.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Router is anything that can resolve a request to a routing result. The
// chain implements it, and so does the decision-cache wrapper around the
// chain, so callers never need to know whether caching is enabled.
type Router interface {
	Route(ctx context.Context, req *RequestContext) (*RoutingResult, error)
}

// Node is one link of the router chain. Handle returns nil to escalate to
// the next node; the fallback node never returns nil, which is what makes
// Route total. Nodes absorb their own failures instead of returning errors,
// so the only error a chain walk can surface is context cancellation.
type Node interface {
	Name() string
	CanHandle(req *RequestContext) bool
	Handle(ctx context.Context, req *RequestContext) *RoutingResult
}

// Completer is the slice of an LLM provider the classifier node needs. The
// balancer satisfies it in production; tests plug in stubs.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// CompletionRequest is a provider-agnostic chat completion request.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// CompletionResponse is the provider-agnostic answer to a CompletionRequest.
type CompletionResponse struct {
	Content  string      `json:"content"`
	Model    string      `json:"model,omitempty"`
	Provider string      `json:"provider,omitempty"`
	Usage    *TokenUsage `json:"usage,omitempty"`
}

// TokenUsage mirrors the usage block of OpenAI-compatible responses.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TraceKind labels the events a chain emits while it walks its nodes.
type TraceKind string

const (
	TraceNodeAttempt  TraceKind = "node_attempt"
	TraceNodeEscalate TraceKind = "node_escalate"
	TraceCompleted    TraceKind = "routing_completed"
	TraceCacheHit     TraceKind = "cache_hit"
	TraceCacheStore   TraceKind = "cache_store"
	TraceCacheFlush   TraceKind = "cache_flush"
)

// TraceEvent is a single step of a routing decision, published for live
// dashboards and hooks. Events are advisory: losing or dropping them never
// changes the routing outcome.
type TraceEvent struct {
	Kind       TraceKind     `json:"kind"`
	RequestID  string        `json:"request_id,omitempty"`
	SessionID  string        `json:"session_id,omitempty"`
	Node       string        `json:"node,omitempty"`
	Method     RoutingMethod `json:"routing_method,omitempty"`
	Agent      AgentType     `json:"agent,omitempty"`
	Intent     string        `json:"intent,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	LatencyMs  int64         `json:"latency_ms,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Tracer receives trace events. Implementations must not block; the event
// bus adapter buffers internally.
type Tracer interface {
	Trace(evt TraceEvent)
}

// NopTracer discards all trace events.
type NopTracer struct{}

func (NopTracer) Trace(TraceEvent) {}

// ErrMissingFallback is returned by NewChain when no fallback node is wired.
// A chain without a terminal node could fail to answer, which the router's
// totality guarantee forbids.
var ErrMissingFallback = errors.New("routing: chain requires a fallback node")

// ErrChainExhausted indicates every node escalated, which cannot happen with
// a correctly constructed chain. It exists so a misbuilt chain fails loudly
// instead of returning a nil result.
var ErrChainExhausted = errors.New("routing: no node produced a result")
