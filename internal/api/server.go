// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the AgentHive HTTP surface: the routing endpoint,
// the management and stats endpoints, the live trace stream, and the
// Prometheus scrape handler.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/agenthive/agenthive/internal/balancer"
	"github.com/agenthive/agenthive/internal/buildinfo"
	"github.com/agenthive/agenthive/internal/config"
	"github.com/agenthive/agenthive/internal/history"
	"github.com/agenthive/agenthive/internal/hooks"
	"github.com/agenthive/agenthive/internal/metrics"
	"github.com/agenthive/agenthive/internal/routing"
)

// Deps carries the collaborators the server exposes over HTTP. Router is
// mandatory; everything else may be nil and the matching endpoints degrade
// to empty or 503 responses instead of panicking.
type Deps struct {
	// Router resolves routing requests. Usually the decision-cache wrapper
	// around the chain, or the bare chain when caching is disabled.
	Router routing.Router

	// Cache is the decision-cache wrapper when caching is enabled. Kept
	// separately from Router so the cache endpoints can reach its controls.
	Cache *routing.CachedRouter

	// Chain is the underlying node chain, for the stats endpoint's node
	// order display.
	Chain *routing.Chain

	// Rules and Catalog describe the active rule pack.
	Rules   *routing.RuleSet
	Catalog *routing.Catalog

	// Collector is the in-process metrics collector backing /v1/stats.
	Collector *metrics.Collector

	// Balancer reports provider circuit states.
	Balancer *balancer.Balancer

	// Journal and Archiver back the history endpoints.
	Journal  *history.Journal
	Archiver *history.Archiver

	// Hooks and Bus back the hook management endpoints and event
	// publication from the routing endpoint.
	Hooks *hooks.Manager
	Bus   *hooks.Bus

	// Trace fans routing trace events out to websocket subscribers.
	Trace *TraceHub

	// Registry serves /metrics when Prometheus metrics are enabled.
	Registry *prometheus.Registry
}

// Server is the AgentHive HTTP server.
type Server struct {
	cfg    *config.Config
	deps   Deps
	engine *gin.Engine
	srv    *http.Server
}

// NewServer builds the HTTP server and registers all routes. It does not
// start listening; call Run for that.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())
	engine.Use(compression())

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		engine: engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handleStatsPage)
	s.engine.GET("/healthz", s.handleHealthz)

	if s.deps.Registry != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			s.deps.Registry,
			promhttp.HandlerOpts{},
		)))
	}

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/route", s.handleRoute)
		v1.GET("/agents", s.handleAgents)
		v1.GET("/rules", s.handleRules)
		v1.GET("/stats", s.handleStats)
		v1.GET("/status", s.handleStatus)
		v1.GET("/history", s.handleHistory)
		v1.GET("/history/stats", s.handleHistoryStats)
		v1.GET("/hooks", s.handleHooks)
		v1.GET("/cache/stats", s.handleCacheStats)
		v1.GET("/trace", s.handleTrace)
	}

	mgmt := s.engine.Group("/v1", s.managementGuard())
	{
		mgmt.DELETE("/cache", s.handleCacheFlush)
		mgmt.PUT("/cache/enabled", s.handleCacheEnabled)
		mgmt.POST("/stats/reset", s.handleStatsReset)
		mgmt.POST("/history/archive", s.handleHistoryArchive)
		mgmt.POST("/hooks/reload", s.handleHooksReload)
	}
}

// handleHealthz reports liveness. It intentionally checks nothing beyond
// the process being up; routing degrades through the fallback node rather
// than going unhealthy.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
	})
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Run starts serving and blocks until the listener fails or Shutdown is
// called. A clean shutdown returns nil.
func (s *Server) Run() error {
	s.srv = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var err error
	if s.cfg.TLS.Enable {
		log.Infof("AgentHive listening on https://%s", s.srv.Addr)
		err = s.srv.ListenAndServeTLS(s.cfg.TLS.Cert, s.cfg.TLS.Key)
	} else {
		log.Infof("AgentHive listening on http://%s", s.srv.Addr)
		err = s.srv.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests
// up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if s.deps.Trace != nil {
		s.deps.Trace.Close()
	}
	return s.srv.Shutdown(ctx)
}
