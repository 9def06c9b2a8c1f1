// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/agenthive/agenthive/internal/buildinfo"
	"github.com/agenthive/agenthive/internal/history"
	"github.com/agenthive/agenthive/internal/hooks"
	"github.com/agenthive/agenthive/internal/routing"
)

// handleAgents lists the agent catalog: every routable agent with the
// description the classifier prompt uses.
func (s *Server) handleAgents(c *gin.Context) {
	catalog := s.deps.Catalog
	if catalog == nil {
		catalog = routing.NewCatalog(nil)
	}
	descriptions := catalog.Descriptions()
	c.JSON(http.StatusOK, gin.H{
		"agents": descriptions,
		"count":  len(descriptions),
	})
}

// handleRules lists the active rule set in registration order.
func (s *Server) handleRules(c *gin.Context) {
	rules := s.deps.Rules.Rules()
	if rules == nil {
		rules = []*routing.RoutingRule{}
	}
	c.JSON(http.StatusOK, gin.H{
		"rules": rules,
		"count": len(rules),
	})
}

// handleStats reports the collector snapshot plus live chain and circuit
// state. Live balancer states override the snapshot's last-transition view.
func (s *Server) handleStats(c *gin.Context) {
	resp := gin.H{
		"version": buildinfo.Version,
	}
	if s.deps.Collector != nil {
		resp["stats"] = s.deps.Collector.Snapshot()
	}
	if s.deps.Chain != nil {
		resp["chain"] = s.deps.Chain.NodeNames()
	}
	if s.deps.Balancer != nil {
		resp["circuit_states"] = s.deps.Balancer.States()
	}
	c.JSON(http.StatusOK, resp)
}

// handleStatsReset zeroes the collector. Management guarded.
func (s *Server) handleStatsReset(c *gin.Context) {
	if s.deps.Collector == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics collection disabled"})
		return
	}
	s.deps.Collector.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// handleCacheStats reports decision-cache configuration and layer sizes.
func (s *Server) handleCacheStats(c *gin.Context) {
	cached := s.deps.Cache
	if cached == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	stats := cached.Stats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"enabled":     cached.Enabled(),
		"ttl_seconds": int(cached.TTL().Seconds()),
		"l1_entries":  stats.L1Entries,
		"l1_capacity": stats.L1Capacity,
		"l2_entries":  stats.L2Entries,
		"backend":     stats.Backend,
	})
}

// handleCacheFlush drops every cached routing decision. Management guarded.
func (s *Server) handleCacheFlush(c *gin.Context) {
	if s.deps.Cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision cache disabled"})
		return
	}
	s.deps.Cache.InvalidateAll(c.Request.Context())
	if s.deps.Bus != nil {
		s.deps.Bus.PublishAsync(hooks.NewEvent(hooks.EventCacheInvalidated, map[string]any{
			"reason": "api_flush",
		}))
	}
	c.JSON(http.StatusOK, gin.H{"status": "flushed"})
}

// cacheEnabledRequest is the body of PUT /v1/cache/enabled.
type cacheEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleCacheEnabled toggles decision-cache lookups at runtime without
// flushing stored entries. Management guarded.
func (s *Server) handleCacheEnabled(c *gin.Context) {
	if s.deps.Cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision cache disabled"})
		return
	}
	var body cacheEnabledRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"enabled\": true|false}"})
		return
	}
	s.deps.Cache.SetEnabled(*body.Enabled)
	log.Infof("Decision cache lookups set to enabled=%v", *body.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": s.deps.Cache.Enabled()})
}

// handleHistory returns the most recent journaled routing decisions.
// The limit query parameter caps the page size at 500, default 50.
func (s *Server) handleHistory(c *gin.Context) {
	if s.deps.Journal == nil || !s.deps.Journal.IsEnabled() {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "entries": []*history.Entry{}, "count": 0})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}
	entries, err := s.deps.Journal.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []*history.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled": true,
		"entries": entries,
		"count":   len(entries),
	})
}

// handleHistoryStats summarizes the journal: totals plus by-agent and
// by-method breakdowns computed in SQL.
func (s *Server) handleHistoryStats(c *gin.Context) {
	if s.deps.Journal == nil || !s.deps.Journal.IsEnabled() {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	stats, err := s.deps.Journal.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats["enabled"] = true
	c.JSON(http.StatusOK, stats)
}

// handleHistoryArchive exports the journal to the configured object store.
// Management guarded.
func (s *Server) handleHistoryArchive(c *gin.Context) {
	if s.deps.Archiver == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history archiving not configured"})
		return
	}
	if s.deps.Journal == nil || !s.deps.Journal.IsEnabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history journal disabled"})
		return
	}
	object, err := s.deps.Archiver.Archive(c.Request.Context(), s.deps.Journal)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "archived",
		"object": object,
	})
}

// handleHooks lists the loaded hooks.
func (s *Server) handleHooks(c *gin.Context) {
	if s.deps.Hooks == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "hooks": []*hooks.Hook{}, "count": 0})
		return
	}
	loaded := s.deps.Hooks.Hooks()
	c.JSON(http.StatusOK, gin.H{
		"enabled": true,
		"dir":     s.deps.Hooks.Dir(),
		"hooks":   loaded,
		"count":   len(loaded),
	})
}

// handleHooksReload re-reads hook definitions from disk. Management
// guarded; the file watcher does this automatically when enabled.
func (s *Server) handleHooksReload(c *gin.Context) {
	if s.deps.Hooks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "hooks disabled"})
		return
	}
	if err := s.deps.Hooks.Load(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "reloaded",
		"count":  len(s.deps.Hooks.Hooks()),
	})
}
