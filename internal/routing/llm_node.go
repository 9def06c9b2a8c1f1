// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tiktoken-go/tokenizer"

	"github.com/agenthive/agenthive/internal/metrics"
)

// defaultLLMConfidence is assumed when the model's reply omits the
// confidence field. The reply still carries a usable classification, so it
// is accepted at the same grade the fallback node reports.
const defaultLLMConfidence = 0.5

// LLMNodeConfig carries the tunables for the classifier node. Zero values
// select sensible defaults; see NewLLMNode.
type LLMNodeConfig struct {
	// Model overrides the provider's default model when non-empty.
	Model string
	// Temperature for the classification call. Low values keep the JSON
	// output stable.
	Temperature float64
	// MaxTokens bounds the completion; classifications are short.
	MaxTokens int
	// Timeout bounds a single classification call. A timeout counts as a
	// provider failure and escalates to the next node; it does not abort
	// the request.
	Timeout time.Duration
	// HistoryTokenBudget limits how much conversation history is replayed
	// to the classifier, newest turns first. Negative disables history
	// replay entirely.
	HistoryTokenBudget int
	// MinConfidence, when positive, escalates classifications the model
	// itself grades below the floor.
	MinConfidence float64
}

// LLMNode classifies prompts the regex rules cannot: it sends the prompt
// plus the agent catalog to an LLM and validates the returned JSON. Every
// failure mode (provider down, timeout, unparseable reply, unknown agent)
// is absorbed and reported as nil so the chain can escalate.
type LLMNode struct {
	completer Completer
	catalog   *Catalog
	cfg       LLMNodeConfig

	metrics metrics.Sink
}

// NewLLMNode builds a classifier node. The completer may be nil, in which
// case CanHandle reports false and the chain skips the node entirely.
func NewLLMNode(completer Completer, catalog *Catalog, cfg LLMNodeConfig) *LLMNode {
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 300
	}
	if cfg.HistoryTokenBudget == 0 {
		cfg.HistoryTokenBudget = 512
	}
	return &LLMNode{
		completer: completer,
		catalog:   catalog,
		cfg:       cfg,
	}
}

// SetMetricsSink wires an optional sink for classifier failure counters.
func (n *LLMNode) SetMetricsSink(sink metrics.Sink) {
	n.metrics = sink
}

// Name identifies the node in traces and logs.
func (n *LLMNode) Name() string { return "llm_router" }

// CanHandle reports whether an LLM adapter is configured.
func (n *LLMNode) CanHandle(*RequestContext) bool {
	return n.completer != nil
}

// Handle classifies the request via the LLM. It returns nil on any
// provider or parse failure; the caller decides whether to escalate.
func (n *LLMNode) Handle(ctx context.Context, req *RequestContext) *RoutingResult {
	result, cerr := n.classify(ctx, req)
	if cerr != nil {
		entry := log.WithFields(log.Fields{
			"request_id": req.RequestID,
			"kind":       string(cerr.kind),
		})
		switch cerr.kind {
		case errKindProvider:
			entry.Warnf("LLM classification unavailable: %v", cerr.err)
		case errKindMalformed:
			entry.Warnf("LLM classification unparseable: %v", cerr.err)
		}
		if n.metrics != nil {
			n.metrics.RecordClassifierError(string(cerr.kind))
		}
		return nil
	}
	if n.cfg.MinConfidence > 0 && result.Confidence < n.cfg.MinConfidence {
		log.WithFields(log.Fields{
			"request_id": req.RequestID,
			"confidence": result.Confidence,
			"floor":      n.cfg.MinConfidence,
		}).Debug("Classification below confidence floor, escalating")
		return nil
	}
	return result
}

// classificationErrKind separates "the provider call failed" from "the
// provider answered something we could not use". The two are logged and
// counted differently; both escalate.
type classificationErrKind string

const (
	errKindProvider  classificationErrKind = "provider_error"
	errKindMalformed classificationErrKind = "malformed_response"
)

type classificationError struct {
	kind classificationErrKind
	err  error
}

func (e *classificationError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (n *LLMNode) classify(ctx context.Context, req *RequestContext) (*RoutingResult, *classificationError) {
	if n.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	resp, err := n.completer.Complete(ctx, CompletionRequest{
		Model:       n.cfg.Model,
		Messages:    n.buildMessages(req),
		Temperature: n.cfg.Temperature,
		MaxTokens:   n.cfg.MaxTokens,
	})
	if err != nil {
		return nil, &classificationError{kind: errKindProvider, err: err}
	}

	result, cerr := parseClassification(resp.Content)
	if cerr != nil {
		return nil, cerr
	}
	if resp.Model != "" {
		result.Metadata["classifier_model"] = resp.Model
	}
	if resp.Provider != "" {
		result.Metadata["classifier_provider"] = resp.Provider
	}
	return result, nil
}

// buildMessages assembles the classification conversation: system prompt
// with the agent catalog and output-format contract, trimmed history, then
// the user's prompt.
func (n *LLMNode) buildMessages(req *RequestContext) []Message {
	messages := make([]Message, 0, len(req.History)+2)
	messages = append(messages, Message{Role: "system", Content: n.systemPrompt()})
	messages = append(messages, trimHistory(req.History, n.cfg.HistoryTokenBudget)...)
	messages = append(messages, Message{Role: "user", Content: req.Prompt})
	return messages
}

func (n *LLMNode) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are the routing classifier for a team of specialist agents. ")
	b.WriteString("Read the user's request and pick the single agent whose domain covers it.\n\n")
	b.WriteString("Agents:\n")
	b.WriteString(n.catalog.PromptLines())
	b.WriteString("\n\nClassification rules:\n")
	b.WriteString("- Pick the agent responsible for the primary action the user wants to take, not the first domain keyword in the sentence. \"Buy a property to lease it out\" is a purchase, so it belongs to sales.\n")
	b.WriteString("- Reports of bugs, errors, crashes, or anything not working belong to support, even when the sentence mentions another domain.\n")
	b.WriteString("- When no specialist clearly applies, answer \"general\".\n\n")
	b.WriteString("Respond with only a JSON object, no prose:\n")
	b.WriteString(`{"agent_type": "<agent>", "intent": "<snake_case_intent>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`)
	return b.String()
}

// parseClassification extracts and validates the classifier's JSON reply.
// The model sometimes wraps the object in markdown fences or prose, so the
// parser finds the outermost object rather than requiring a bare document.
func parseClassification(content string) (*RoutingResult, *classificationError) {
	obj, ok := extractJSONObject(content)
	if !ok {
		return nil, &classificationError{
			kind: errKindMalformed,
			err:  fmt.Errorf("no JSON object in reply %q", snippet(content)),
		}
	}
	parsed := gjson.Parse(obj)

	agentField := parsed.Get("agent_type")
	if !agentField.Exists() {
		return nil, &classificationError{
			kind: errKindMalformed,
			err:  fmt.Errorf("reply %q is missing agent_type", snippet(obj)),
		}
	}
	agent, err := ParseAgentType(agentField.String())
	if err != nil {
		return nil, &classificationError{kind: errKindMalformed, err: err}
	}

	confidence := defaultLLMConfidence
	if c := parsed.Get("confidence"); c.Exists() {
		confidence = c.Float()
	}

	intent := strings.TrimSpace(parsed.Get("intent").String())
	if intent == "" {
		intent = "general_query"
	}

	result := NewRoutingResult(agent, intent, confidence, MethodLLM)
	if reasoning := strings.TrimSpace(parsed.Get("reasoning").String()); reasoning != "" {
		result.Metadata["reasoning"] = reasoning
	}
	if entities := parsed.Get("entities"); entities.IsObject() {
		for key, value := range entities.Map() {
			result.Entities[key] = value.Value()
		}
	}
	return result, nil
}

// extractJSONObject pulls the outermost {...} from a reply, tolerating
// markdown fences and surrounding prose.
func extractJSONObject(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return "", false
	}
	candidate := trimmed[start : end+1]
	if !gjson.Valid(candidate) {
		return "", false
	}
	return candidate, true
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}

// trimHistory keeps the newest turns that fit the token budget, preserving
// chronological order. A zero budget drops history entirely.
func trimHistory(history []Message, budget int) []Message {
	if budget <= 0 || len(history) == 0 {
		return nil
	}
	used := 0
	keepFrom := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := countTokens(history[i].Content) + 4
		if used+cost > budget {
			break
		}
		used += cost
		keepFrom = i
	}
	if keepFrom == len(history) {
		return nil
	}
	return history[keepFrom:]
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// countTokens counts tokens with the cl100k_base encoding, falling back to
// a bytes/4 estimate if the tokenizer cannot be initialized.
func countTokens(text string) int {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Debugf("Tokenizer unavailable, estimating token counts: %v", err)
			return
		}
		codec = c
	})
	if codec != nil {
		if ids, _, err := codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return len(text)/4 + 1
}
