// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"sort"
	"strings"
)

// Catalog holds the human-readable description of every agent. The LLM
// classifier renders it into its prompt, and the management API exposes it
// so operators can see what each agent claims to handle.
type Catalog struct {
	descriptions map[AgentType]string
}

// defaultAgentDescriptions is the built-in catalog. Rule packs may override
// individual entries, but never add agents outside the known set.
func defaultAgentDescriptions() map[AgentType]string {
	return map[AgentType]string{
		AgentLease:   "Apartment and property leases: lease agreements, renewals, terminations, rent terms, deposits, and tenant or landlord obligations.",
		AgentSales:   "Buying and selling: property purchases, pricing, offers, listings, investment opportunities, and anything aimed at closing a sale.",
		AgentSupport: "Technical support: bugs, errors, crashes, login problems, outages, and anything that is broken or not working as expected.",
		AgentGeneral: "General questions that do not clearly belong to any specialist agent.",
		AgentHR:      "Human resources: hiring, onboarding, payroll questions, benefits, vacation, and workplace policy.",
		AgentIT:      "Internal IT: hardware, accounts, VPN, email, device setup, and access requests.",
		AgentFinance: "Finance: invoices, billing, refunds, budgets, expense reports, and payment processing.",
	}
}

// NewCatalog builds a catalog from the defaults plus the given overrides.
// Overrides for unknown agents are ignored; empty override text keeps the
// default description.
func NewCatalog(overrides map[AgentType]string) *Catalog {
	descriptions := defaultAgentDescriptions()
	for agent, text := range overrides {
		if !agent.Valid() {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		descriptions[agent] = text
	}
	return &Catalog{descriptions: descriptions}
}

// Describe returns the description for a single agent.
func (c *Catalog) Describe(agent AgentType) string {
	return c.descriptions[agent]
}

// Agents returns the catalog's agent types in stable order.
func (c *Catalog) Agents() []AgentType {
	agents := make([]AgentType, 0, len(c.descriptions))
	for _, agent := range AgentTypes() {
		if _, ok := c.descriptions[agent]; ok {
			agents = append(agents, agent)
		}
	}
	return agents
}

// Descriptions returns a copy of the full catalog keyed by agent name,
// for the management API.
func (c *Catalog) Descriptions() map[string]string {
	out := make(map[string]string, len(c.descriptions))
	for agent, text := range c.descriptions {
		out[string(agent)] = text
	}
	return out
}

// PromptLines renders the catalog as one "- name: description" line per
// agent, in stable order, for embedding into the classifier prompt.
func (c *Catalog) PromptLines() string {
	var b strings.Builder
	for _, agent := range c.Agents() {
		b.WriteString("- ")
		b.WriteString(string(agent))
		b.WriteString(": ")
		b.WriteString(c.descriptions[agent])
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// sortedAgentNames is a helper for deterministic logging of agent sets.
func sortedAgentNames(agents []AgentType) []string {
	names := make([]string, len(agents))
	for i, agent := range agents {
		names[i] = string(agent)
	}
	sort.Strings(names)
	return names
}
