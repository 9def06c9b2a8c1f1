// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
)

// RoutingRule is one compiled regex rule. Lower Priority wins when several
// rules match the same prompt; ties go to the rule registered first.
type RoutingRule struct {
	Pattern  string    `json:"pattern"`
	Agent    AgentType `json:"agent"`
	Intent   string    `json:"intent"`
	Priority int       `json:"priority"`
	When     string    `json:"when,omitempty"`

	re    *regexp.Regexp
	guard *vm.Program
	index int
}

// GuardEnv is the environment a rule's optional when-expression runs
// against. Expressions see snake_case names, e.g.
// `metadata.channel == "web" && history_len == 0`.
type GuardEnv struct {
	Prompt     string         `expr:"prompt"`
	SessionID  string         `expr:"session_id"`
	UserID     string         `expr:"user_id"`
	HistoryLen int            `expr:"history_len"`
	Metadata   map[string]any `expr:"metadata"`
}

// CompileRule builds a rule from a pattern. Patterns match anywhere in the
// prompt and are case-insensitive regardless of how they are written.
func CompileRule(pattern string, agent AgentType, intent string, priority int) (*RoutingRule, error) {
	if !agent.Valid() {
		return nil, fmt.Errorf("rule %q: unknown agent %q", pattern, agent)
	}
	if strings.TrimSpace(intent) == "" {
		return nil, fmt.Errorf("rule %q: intent must not be empty", pattern)
	}
	source := pattern
	if !strings.HasPrefix(source, "(?i)") {
		source = "(?i)" + source
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", pattern, err)
	}
	return &RoutingRule{
		Pattern:  pattern,
		Agent:    agent,
		Intent:   intent,
		Priority: priority,
		re:       re,
	}, nil
}

// CompileGuard attaches a when-expression to the rule. Guards are compiled
// once here so a bad expression fails at load time, not per request.
func (r *RoutingRule) CompileGuard(when string) error {
	when = strings.TrimSpace(when)
	if when == "" || when == "true" {
		r.When = ""
		r.guard = nil
		return nil
	}
	program, err := expr.Compile(when, expr.Env(GuardEnv{}))
	if err != nil {
		return fmt.Errorf("rule %q: invalid when-expression: %w", r.Pattern, err)
	}
	r.When = when
	r.guard = program
	return nil
}

// matchSpan returns the location of the rule's first match in the prompt.
// The regex must match somewhere and the guard, if present, must pass. A
// guard that errors or returns a non-bool disables the rule for this
// request only.
func (r *RoutingRule) matchSpan(req *RequestContext) ([2]int, bool) {
	loc := r.re.FindStringIndex(req.Prompt)
	if loc == nil {
		return [2]int{}, false
	}
	if r.guard != nil && !r.guardPasses(req) {
		return [2]int{}, false
	}
	return [2]int{loc[0], loc[1]}, true
}

func (r *RoutingRule) guardPasses(req *RequestContext) bool {
	env := GuardEnv{
		Prompt:     req.Prompt,
		SessionID:  req.SessionID,
		UserID:     req.UserID,
		HistoryLen: len(req.History),
		Metadata:   req.Metadata,
	}
	if env.Metadata == nil {
		env.Metadata = map[string]any{}
	}
	output, err := expr.Run(r.guard, env)
	if err != nil {
		log.WithFields(log.Fields{
			"pattern": r.Pattern,
			"when":    r.When,
		}).Debugf("Rule guard failed, skipping rule: %v", err)
		return false
	}
	pass, ok := output.(bool)
	return ok && pass
}

// RuleSet is an ordered collection of routing rules. It is assembled at
// startup and never mutated afterwards, so concurrent reads need no locking.
type RuleSet struct {
	rules []*RoutingRule
}

// NewRuleSet builds a set from rules in registration order.
func NewRuleSet(rules ...*RoutingRule) *RuleSet {
	set := &RuleSet{}
	for _, rule := range rules {
		set.add(rule)
	}
	return set
}

func (s *RuleSet) add(rule *RoutingRule) {
	rule.index = len(s.rules)
	s.rules = append(s.rules, rule)
}

// Len returns the number of rules in the set.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Rules returns the rules in registration order for display purposes.
func (s *RuleSet) Rules() []*RoutingRule {
	if s == nil {
		return nil
	}
	out := make([]*RoutingRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// RuleMatch pairs a matching rule with where its pattern first hit the
// prompt.
type RuleMatch struct {
	Rule *RoutingRule
	Span [2]int
}

// Match returns every rule that applies to the request, in registration
// order, with the span of each rule's first hit. An empty prompt can still
// match if a pattern allows it; the set imposes no minimum length.
func (s *RuleSet) Match(req *RequestContext) []RuleMatch {
	if s == nil {
		return nil
	}
	var matched []RuleMatch
	for _, rule := range s.rules {
		if span, ok := rule.matchSpan(req); ok {
			matched = append(matched, RuleMatch{Rule: rule, Span: span})
		}
	}
	return matched
}

// BestMatch returns the winning match for the request: lowest priority
// number first, registration order breaking ties. Returns nil when nothing
// matches.
func (s *RuleSet) BestMatch(req *RequestContext) *RuleMatch {
	matched := s.Match(req)
	if len(matched) == 0 {
		return nil
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Rule.Priority < matched[j].Rule.Priority
	})
	return &matched[0]
}

// DefaultRules is the built-in rule set used when no rule pack is
// configured. Malfunction reports and purchase actions carry priority 5 so
// they outrank plain domain keywords at priority 10; that is what sends
// "buy a property to lease it out" to sales and "the rental application has
// a bug" to support without consulting the classifier.
func DefaultRules() *RuleSet {
	specs := []struct {
		pattern  string
		agent    AgentType
		intent   string
		priority int
	}{
		{`\b(bug|error|crash(ed|es)?|broken|not working|stopped working|fail(s|ed|ing)?|outage|down)\b`, AgentSupport, "technical_support", 5},
		{`\b(can.?t|cannot|unable to) (log ?in|sign ?in|connect|access)\b`, AgentSupport, "technical_support", 5},
		{`\b(buy|buying|purchas(e|ing)|sell|selling|invest(ing)? in|make an offer)\b`, AgentSales, "sales_inquiry", 5},
		{`\b(lease|leasing|rental agreement|renewal|tenant|landlord|security deposit)\b`, AgentLease, "lease_inquiry", 10},
		{`\b(listing|list price|pricing|for sale|open house|property value)\b`, AgentSales, "sales_inquiry", 10},
		{`\b(payroll|paycheck|vacation|pto|benefits|onboarding|hiring|time off)\b`, AgentHR, "hr_request", 10},
		{`\b(vpn|password reset|laptop|workstation|email access|account locked|2fa)\b`, AgentIT, "it_request", 10},
		{`\b(invoice|refund|billing|expense report|budget|payment failed|charge)\b`, AgentFinance, "billing_inquiry", 10},
	}
	set := &RuleSet{}
	for _, spec := range specs {
		rule, err := CompileRule(spec.pattern, spec.agent, spec.intent, spec.priority)
		if err != nil {
			// Built-in patterns are covered by tests; a bad one is a
			// programming error.
			panic(err)
		}
		set.add(rule)
	}
	return set
}

// RulePack is a parsed rule-pack file: agent description overrides plus the
// compiled rule set.
type RulePack struct {
	Version int
	Catalog *Catalog
	Rules   *RuleSet
}

type rulePackFile struct {
	Version int               `yaml:"version"`
	Agents  map[string]string `yaml:"agents"`
	Rules   []rulePackRule    `yaml:"rules"`
}

type rulePackRule struct {
	Pattern  string `yaml:"pattern"`
	Agent    string `yaml:"agent"`
	Intent   string `yaml:"intent"`
	Priority *int   `yaml:"priority"`
	When     string `yaml:"when"`
}

// defaultRulePriority applies when a pack rule omits its priority. It sits
// below the built-in specials so packs opt in to overriding them.
const defaultRulePriority = 100

// LoadRulePack reads and compiles a rule-pack YAML file. Any invalid entry
// fails the whole load; a half-applied pack would route inconsistently.
func LoadRulePack(path string) (*RulePack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule pack: %w", err)
	}
	return ParseRulePack(data)
}

// ParseRulePack compiles rule-pack YAML bytes.
func ParseRulePack(data []byte) (*RulePack, error) {
	var file rulePackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule pack: %w", err)
	}
	if file.Version != 0 && file.Version != 1 {
		return nil, fmt.Errorf("rule pack version %d is not supported", file.Version)
	}

	overrides := make(map[AgentType]string, len(file.Agents))
	for name, text := range file.Agents {
		agent, err := ParseAgentType(name)
		if err != nil {
			return nil, fmt.Errorf("rule pack agents: %w", err)
		}
		overrides[agent] = text
	}

	set := &RuleSet{}
	for i, raw := range file.Rules {
		agent, err := ParseAgentType(raw.Agent)
		if err != nil {
			return nil, fmt.Errorf("rule pack rule %d: %w", i, err)
		}
		priority := defaultRulePriority
		if raw.Priority != nil {
			priority = *raw.Priority
		}
		rule, err := CompileRule(raw.Pattern, agent, raw.Intent, priority)
		if err != nil {
			return nil, fmt.Errorf("rule pack rule %d: %w", i, err)
		}
		if err := rule.CompileGuard(raw.When); err != nil {
			return nil, fmt.Errorf("rule pack rule %d: %w", i, err)
		}
		set.add(rule)
	}

	pack := &RulePack{
		Version: file.Version,
		Catalog: NewCatalog(overrides),
		Rules:   set,
	}
	log.WithFields(log.Fields{
		"rules":  set.Len(),
		"agents": strings.Join(sortedAgentNames(pack.Catalog.Agents()), ","),
	}).Info("Loaded rule pack")
	return pack, nil
}
