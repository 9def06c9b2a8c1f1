// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides routecheck, an offline checker for AgentHive rule
// packs. It compiles a pack the same way the server does at startup,
// reports anything the server would reject, flags suspicious patterns,
// lints hook definitions, and optionally routes sample prompts through the
// offline chain (regex + fallback, no provider needed). Intended for CI
// review of rule-pack changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"

	"github.com/agenthive/agenthive/internal/hooks"
	"github.com/agenthive/agenthive/internal/logging"
	"github.com/agenthive/agenthive/internal/routing"
)

// init keeps library logging quiet; check results go to stdout.
func init() {
	logging.SetupBaseLogger()
	log.SetLevel(log.ErrorLevel)
}

// report tallies findings across all checks. Errors fail the run; warnings
// are advisory and leave the exit code at zero.
type report struct {
	errors   int
	warnings int
}

func (r *report) errorf(format string, args ...any) {
	r.errors++
	fmt.Printf("✗ "+format+"\n", args...)
}

func (r *report) warnf(format string, args ...any) {
	r.warnings++
	fmt.Printf("⚠ "+format+"\n", args...)
}

func main() {
	var (
		promptsPath string
		hooksDir    string
		verbose     bool
	)

	flag.StringVar(&promptsPath, "prompts", "", "Route sample prompts from this file (one per line, optional '-> agent' expectation)")
	flag.StringVar(&hooksDir, "hooks", "", "Also lint hook YAML files in this directory")
	flag.BoolVar(&verbose, "verbose", false, "Print every compiled rule")
	flag.CommandLine.Usage = func() {
		out := flag.CommandLine.Output()
		_, _ = fmt.Fprintf(out, "Usage: %s [options] [rulepack.yaml]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		_, _ = fmt.Fprintln(out, "\nExamples:")
		_, _ = fmt.Fprintln(out, "  routecheck rulepack.yaml")
		_, _ = fmt.Fprintln(out, "  routecheck --prompts prompts.txt rulepack.yaml")
		_, _ = fmt.Fprintln(out, "  routecheck --hooks hooks/ --verbose rulepack.yaml")
	}
	flag.Parse()

	packPath := flag.Arg(0)
	if packPath == "" {
		packPath = "rulepack.yaml"
	}

	fmt.Println("AgentHive Rule-Pack Check")
	fmt.Println("=========================")
	fmt.Printf("Pack: %s\n\n", packPath)

	rep := &report{}

	pack := checkPack(rep, packPath, verbose)

	if hooksDir != "" {
		fmt.Printf("\nHooks: %s\n", hooksDir)
		checkHooks(rep, hooksDir)
	}

	if promptsPath != "" && pack != nil {
		fmt.Printf("\nDry run: %s\n", promptsPath)
		checkPrompts(rep, pack, promptsPath)
	}

	fmt.Printf("\nSummary: %d error(s), %d warning(s)\n", rep.errors, rep.warnings)
	if rep.errors > 0 {
		os.Exit(1)
	}
}

// checkPack compiles the pack and runs the advisory lints. Returns nil when
// the pack does not compile; the dry run is skipped in that case.
func checkPack(rep *report, path string, verbose bool) *routing.RulePack {
	data, err := os.ReadFile(path)
	if err != nil {
		rep.errorf("cannot read pack: %v", err)
		return nil
	}

	pack, err := routing.ParseRulePack(data)
	if err != nil {
		rep.errorf("pack does not compile: %v", err)
		return nil
	}

	rules := pack.Rules.Rules()
	fmt.Printf("✓ Compiled: version %d, %d rule(s), %d agent(s)\n", pack.Version, len(rules), len(pack.Catalog.Agents()))

	if len(rules) == 0 {
		rep.warnf("pack defines no rules; every prompt will reach the classifier or fallback")
	}

	// A pattern that matches the empty prompt matches every prompt at its
	// priority, which is almost always a typo like `.*` or `urgent*`.
	emptyReq := routing.NewRequestContext("", "")
	for _, match := range pack.Rules.Match(emptyReq) {
		rep.warnf("rule %q (%s): matches the empty prompt", match.Rule.Pattern, match.Rule.Agent)
	}

	// Exact duplicate patterns: the later copy can only win when it has a
	// strictly lower priority, so it is usually a copy-paste leftover.
	seen := make(map[string]int, len(rules))
	for i, rule := range rules {
		if first, dup := seen[rule.Pattern]; dup {
			rep.warnf("rule %d duplicates the pattern of rule %d (%q)", i, first, rule.Pattern)
			continue
		}
		seen[rule.Pattern] = i
	}

	if verbose && len(rules) > 0 {
		fmt.Println("\nRules (priority, agent, intent, pattern):")
		for i, rule := range rules {
			guard := ""
			if rule.When != "" {
				guard = "  when " + rule.When
			}
			fmt.Printf("  [%2d] %4d  %-8s %-22s %s%s\n", i, rule.Priority, rule.Agent, rule.Intent, rule.Pattern, guard)
		}
	}

	return pack
}

// checkHooks lints every hook YAML file the way the server loads them: one
// hook per file, known event, compilable condition. Unknown actions are
// advisory since servers may register custom ones.
func checkHooks(rep *report, dir string) {
	builtins := map[hooks.ActionName]bool{
		hooks.ActionLogWarning:    true,
		hooks.ActionNotifyWebhook: true,
		hooks.ActionRunCommand:    true,
	}

	checked := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || (!strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml")) {
			return nil
		}
		checked++
		name := filepath.Base(path)

		data, err := os.ReadFile(path)
		if err != nil {
			rep.errorf("%s: cannot read: %v", name, err)
			return nil
		}
		var hook hooks.Hook
		if err := yaml.Unmarshal(data, &hook); err != nil {
			rep.errorf("%s: does not parse: %v", name, err)
			return nil
		}
		if !hooks.KnownEvent(hook.Event) {
			rep.errorf("%s: unknown event %q", name, hook.Event)
			return nil
		}
		if err := hooks.CompileCondition(hook.Condition); err != nil {
			rep.errorf("%s: %v", name, err)
			return nil
		}
		if !builtins[hook.Action] {
			rep.warnf("%s: action %q is not a built-in; the server must register it", name, hook.Action)
		}

		state := ""
		if !hook.Enabled {
			state = " (disabled)"
		}
		fmt.Printf("  ✓ %s: %s on %s%s\n", name, hook.ID, hook.Event, state)
		return nil
	})
	if err != nil {
		rep.errorf("cannot walk %s: %v", dir, err)
		return
	}
	if checked == 0 {
		rep.warnf("no hook files found under %s", dir)
	}
}

// checkPrompts routes each sample prompt through the offline chain. Lines
// are `prompt` or `prompt -> expected_agent`; expectations that do not hold
// are errors. Blank lines and #-comments are skipped.
func checkPrompts(rep *report, pack *routing.RulePack, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		rep.errorf("cannot read prompts: %v", err)
		return
	}

	chain, err := routing.NewChain(routing.OrderRegexFirst, routing.NewRegexNode(pack.Rules), nil, routing.NewFallbackNode())
	if err != nil {
		rep.errorf("cannot build offline chain: %v", err)
		return
	}

	for i, line := range strings.Split(string(data), "\n") {
		prompt := strings.TrimSpace(line)
		if prompt == "" || strings.HasPrefix(prompt, "#") {
			continue
		}

		expected := ""
		if idx := strings.LastIndex(prompt, "->"); idx >= 0 {
			expected = strings.TrimSpace(prompt[idx+2:])
			prompt = strings.TrimSpace(prompt[:idx])
		}
		if expected != "" {
			if _, err := routing.ParseAgentType(expected); err != nil {
				rep.errorf("line %d: %v", i+1, err)
				continue
			}
		}

		result, err := chain.Route(context.Background(), routing.NewRequestContext(prompt, "routecheck"))
		if err != nil {
			rep.errorf("line %d (%q): routing failed: %v", i+1, prompt, err)
			continue
		}

		agent := string(result.SelectedAgent())
		if expected != "" && agent != expected {
			rep.errorf("%-46q expected %s, got %s (%s, %.2f)", truncatePrompt(prompt), expected, agent, result.Method, result.Confidence)
			continue
		}
		fmt.Printf("  ✓ %-46q %-8s %-8s %.2f\n", truncatePrompt(prompt), agent, result.Method, result.Confidence)
	}
}

func truncatePrompt(prompt string) string {
	const max = 42
	if len(prompt) <= max {
		return prompt
	}
	return prompt[:max-3] + "..."
}
