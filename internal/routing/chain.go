// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/agenthive/agenthive/internal/metrics"
)

// Order selects how the chain arranges its nodes. The fallback node is
// always last regardless of order.
type Order string

const (
	// OrderRegexFirst tries the cheap regex rules before the LLM.
	OrderRegexFirst Order = "regex-first"
	// OrderLLMFirst asks the LLM first and uses regex rules as the net
	// under it. Useful when rules are sparse and prompts are varied.
	OrderLLMFirst Order = "llm-first"
)

// Chain walks its nodes in order until one produces a result. It is safe
// for concurrent use: nodes are wired once at construction and requests
// share no mutable state apart from metrics counters.
type Chain struct {
	nodes []Node

	metrics metrics.Sink
	tracer  Tracer
}

// NewChain wires the nodes for the given order. The fallback node is
// mandatory; regex and llm nodes may be nil, in which case they are left
// out of the walk.
func NewChain(order Order, regex *RegexNode, llm *LLMNode, fallback *FallbackNode) (*Chain, error) {
	if fallback == nil {
		return nil, ErrMissingFallback
	}

	var nodes []Node
	switch order {
	case OrderRegexFirst, "":
		if regex != nil {
			nodes = append(nodes, regex)
		}
		if llm != nil {
			nodes = append(nodes, llm)
		}
	case OrderLLMFirst:
		if llm != nil {
			nodes = append(nodes, llm)
		}
		if regex != nil {
			nodes = append(nodes, regex)
		}
	default:
		return nil, fmt.Errorf("routing: unknown chain order %q", order)
	}
	nodes = append(nodes, fallback)

	return &Chain{
		nodes:   nodes,
		metrics: metrics.NewNop(),
		tracer:  NopTracer{},
	}, nil
}

// SetMetricsSink replaces the default no-op sink.
func (c *Chain) SetMetricsSink(sink metrics.Sink) {
	if sink != nil {
		c.metrics = sink
	}
}

// SetTracer replaces the default no-op tracer.
func (c *Chain) SetTracer(tracer Tracer) {
	if tracer != nil {
		c.tracer = tracer
	}
}

// NodeNames returns the walk order for display purposes.
func (c *Chain) NodeNames() []string {
	names := make([]string, len(c.nodes))
	for i, node := range c.nodes {
		names[i] = node.Name()
	}
	return names
}

// Route resolves the request to exactly one agent. It walks the nodes in
// order, returning the first non-nil result; because the fallback node
// never returns nil, Route always produces a result. The only error it can
// return is the caller's context expiring mid-walk, which is reported
// instead of being papered over with a fallback classification.
func (c *Chain) Route(ctx context.Context, req *RequestContext) (*RoutingResult, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	for _, node := range c.nodes {
		if !node.CanHandle(req) {
			log.WithFields(log.Fields{
				"request_id": req.RequestID,
				"node":       node.Name(),
			}).Debug("Node declined request")
			continue
		}

		c.tracer.Trace(TraceEvent{
			Kind:      TraceNodeAttempt,
			RequestID: req.RequestID,
			SessionID: req.SessionID,
			Node:      node.Name(),
			Timestamp: time.Now(),
		})

		result := node.Handle(ctx, req)
		if result != nil {
			latency := time.Since(start)
			c.finish(req, result, latency)
			return result, nil
		}

		// A node that came back empty because the caller gave up is not a
		// classification miss; surface the cancellation instead of
		// letting the fallback answer for a request nobody is waiting on.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c.tracer.Trace(TraceEvent{
			Kind:      TraceNodeEscalate,
			RequestID: req.RequestID,
			SessionID: req.SessionID,
			Node:      node.Name(),
			Timestamp: time.Now(),
		})
	}

	// Unreachable with a fallback node wired; NewChain enforces that.
	return nil, ErrChainExhausted
}

func (c *Chain) finish(req *RequestContext, result *RoutingResult, latency time.Duration) {
	agent := result.SelectedAgent()
	c.metrics.RecordRouting(string(result.Method), string(agent), result.Confidence, latency, false)
	c.tracer.Trace(TraceEvent{
		Kind:       TraceCompleted,
		RequestID:  req.RequestID,
		SessionID:  req.SessionID,
		Method:     result.Method,
		Agent:      agent,
		Intent:     result.Intent,
		Confidence: result.Confidence,
		LatencyMs:  latency.Milliseconds(),
		Timestamp:  time.Now(),
	})
	log.WithFields(log.Fields{
		"request_id": req.RequestID,
		"method":     string(result.Method),
		"intent":     result.Intent,
		"confidence": result.Confidence,
		"latency_ms": latency.Milliseconds(),
	}).Infof("Routed to %s", agent)
}
