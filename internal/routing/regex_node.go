// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// regexConfidence is reported for every regex hit. Pattern matches are
// exact lexical hits, not probabilistic classifications, so the node does
// not grade them.
const regexConfidence = 1.0

// RegexNode is the first-line matcher of the chain: it resolves prompts
// that hit a routing rule and escalates everything else. It never errors
// and adds no measurable latency, which is why it usually runs before the
// LLM classifier.
type RegexNode struct {
	rules *RuleSet
}

// NewRegexNode builds a regex node over the given rule set. A nil set is
// allowed and simply never matches.
func NewRegexNode(rules *RuleSet) *RegexNode {
	return &RegexNode{rules: rules}
}

// Name identifies the node in traces and logs.
func (n *RegexNode) Name() string { return "regex" }

// CanHandle always returns true; the node expresses "no match" by
// returning nil from Handle, and the chain decides what happens next.
func (n *RegexNode) CanHandle(*RequestContext) bool { return true }

// Handle matches the prompt against the rule set and returns a result for
// the winning rule, or nil when nothing matches.
func (n *RegexNode) Handle(_ context.Context, req *RequestContext) *RoutingResult {
	match := n.rules.BestMatch(req)
	if match == nil {
		return nil
	}
	rule := match.Rule
	result := NewRoutingResult(rule.Agent, rule.Intent, regexConfidence, MethodRegex)
	result.Entities["matched_pattern"] = rule.Pattern
	result.Entities["matched_text"] = req.Prompt[match.Span[0]:match.Span[1]]
	result.Metadata["rule_priority"] = rule.Priority

	log.WithFields(log.Fields{
		"request_id": req.RequestID,
		"agent":      string(rule.Agent),
		"intent":     rule.Intent,
		"pattern":    rule.Pattern,
	}).Debug("Regex node matched")
	return result
}
