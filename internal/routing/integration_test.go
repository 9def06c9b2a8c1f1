// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agenthive/agenthive/internal/cache"
	"github.com/agenthive/agenthive/internal/metrics"
)

// TestRoutingEndToEnd runs the full stack: regex rules, LLM classifier,
// fallback, decision cache, and a layered store persisting to SQLite.
func TestRoutingEndToEnd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "decisions.db")

	backend, err := cache.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	collector := metrics.NewCollector(100)
	store := cache.NewLayered(cache.NewLRU(100), backend, 256, collector)

	completer := &mockCompleter{
		response: `{"agent_type": "general", "intent": "general_query", "confidence": 0.8, "reasoning": "nothing matched"}`,
	}
	llm := NewLLMNode(completer, NewCatalog(nil), LLMNodeConfig{})
	chain, err := NewChain(OrderRegexFirst, NewRegexNode(DefaultRules()), llm, NewFallbackNode())
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	chain.SetMetricsSink(collector)

	router := NewCachedRouter(chain, store, time.Minute)
	router.SetMetricsSink(collector)
	ctx := context.Background()

	// Regex hit, then served from cache.
	first, err := router.Route(ctx, NewRequestContext("I have a question about my apartment lease", "s1"))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if first.SelectedAgent() != AgentLease || first.Method != MethodRegex {
		t.Fatalf("expected lease via regex, got %s via %s", first.SelectedAgent(), first.Method)
	}

	second, err := router.Route(ctx, NewRequestContext("i have a QUESTION about my apartment lease", "s2"))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !second.CacheHit() {
		t.Error("expected a cache hit for the normalized repeat")
	}
	if second.SelectedAgent() != AgentLease || second.Method != MethodRegex {
		t.Errorf("cached decision drifted: %s via %s", second.SelectedAgent(), second.Method)
	}

	// LLM path, exactly one classification across repeats.
	for i := 0; i < 3; i++ {
		result, err := router.Route(ctx, NewRequestContext("tell me about the weather in paris", "s3"))
		if err != nil {
			t.Fatalf("Route: %v", err)
		}
		if result.SelectedAgent() != AgentGeneral || result.Method != MethodLLM {
			t.Fatalf("expected general via llm_router, got %s via %s", result.SelectedAgent(), result.Method)
		}
	}
	if completer.callCount() != 1 {
		t.Errorf("expected exactly one classification, got %d", completer.callCount())
	}

	// Invalidation forces a re-route.
	router.InvalidateAll(ctx)
	if _, err := router.Route(ctx, NewRequestContext("tell me about the weather in paris", "s4")); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if completer.callCount() != 2 {
		t.Errorf("expected re-classification after flush, got %d calls", completer.callCount())
	}

	snap := collector.Snapshot()
	if snap.TotalRequests == 0 || snap.CacheHits == 0 {
		t.Errorf("expected routing and cache activity recorded, got %+v", snap)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// TestRoutingSurvivesRestart checks that decisions written through the
// layered store are served from SQLite by a fresh process with a cold LRU.
func TestRoutingSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "decisions.db")
	ctx := context.Background()
	prompt := "I have a question about my apartment lease"

	backend, err := cache.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	store := cache.NewLayered(cache.NewLRU(100), backend, 0, nil)

	inner := &countingRouter{result: leaseResult()}
	router := NewCachedRouter(inner, store, time.Hour)
	if _, err := router.Route(ctx, NewRequestContext(prompt, "s1")); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Cold start: new LRU, new SQLite handle, same file.
	backend, err = cache.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	store = cache.NewLayered(cache.NewLRU(100), backend, 0, nil)
	defer store.Close()

	restarted := &countingRouter{result: leaseResult()}
	router = NewCachedRouter(restarted, store, time.Hour)

	result, err := router.Route(ctx, NewRequestContext(prompt, "s2"))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !result.CacheHit() {
		t.Error("expected the persisted decision to survive the restart")
	}
	if result.SelectedAgent() != AgentLease {
		t.Errorf("expected lease, got %s", result.SelectedAgent())
	}
	if restarted.callCount() != 0 {
		t.Errorf("expected no inner call after restart, got %d", restarted.callCount())
	}
}
