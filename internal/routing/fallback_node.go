// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import "context"

// fallbackConfidence is deliberately low-medium: it signals that no real
// classification occurred, only that the request was not dropped.
const fallbackConfidence = 0.5

// FallbackNode terminates every chain. It accepts anything and always
// answers with the general agent, which is what makes routing total: no
// prompt, however odd, leaves without an assignment.
type FallbackNode struct{}

// NewFallbackNode builds the terminal node.
func NewFallbackNode() *FallbackNode {
	return &FallbackNode{}
}

// Name identifies the node in traces and logs.
func (n *FallbackNode) Name() string { return "fallback" }

// CanHandle always returns true.
func (n *FallbackNode) CanHandle(*RequestContext) bool { return true }

// Handle always returns the general classification. It never returns nil
// and never fails.
func (n *FallbackNode) Handle(_ context.Context, _ *RequestContext) *RoutingResult {
	return NewRoutingResult(AgentGeneral, "general_query", fallbackConfidence, MethodFallback)
}
