// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agenthive/agenthive/internal/hooks"
	"github.com/agenthive/agenthive/internal/routing"
)

// statusClientClosedRequest is nginx's non-standard code for a caller that
// gave up mid-request. Returned when the routing context is canceled.
const statusClientClosedRequest = 499

// RouteRequest is the body of POST /v1/route.
type RouteRequest struct {
	Prompt    string            `json:"prompt"`
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id,omitempty"`
	History   []routing.Message `json:"conversation_history,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
}

// RouteResponse is the answer to POST /v1/route: the decision plus the
// request identity and timing, flattened for easy consumption.
type RouteResponse struct {
	RequestID     string         `json:"request_id"`
	SelectedAgent string         `json:"selected_agent"`
	Intent        string         `json:"intent"`
	Confidence    float64        `json:"confidence"`
	Method        string         `json:"routing_method"`
	CacheHit      bool           `json:"cache_hit"`
	LatencyMs     int64          `json:"latency_ms"`
	Entities      map[string]any `json:"entities,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// handleRoute resolves a prompt to an agent via the router chain.
func (s *Server) handleRoute(c *gin.Context) {
	var body RouteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(body.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt must not be empty"})
		return
	}
	if s.deps.Router == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "router not initialized"})
		return
	}

	req := routing.NewRequestContext(body.Prompt, body.SessionID)
	req.UserID = body.UserID
	req.History = body.History
	if body.Metadata != nil {
		req.Metadata = body.Metadata
	}

	start := time.Now()
	result, err := s.deps.Router.Route(c.Request.Context(), req)
	latency := time.Since(start)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			c.JSON(statusClientClosedRequest, gin.H{"error": "request canceled"})
		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "routing timed out"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	resp := RouteResponse{
		RequestID:     req.RequestID,
		SelectedAgent: string(result.SelectedAgent()),
		Intent:        result.Intent,
		Confidence:    result.Confidence,
		Method:        string(result.Method),
		CacheHit:      result.CacheHit(),
		LatencyMs:     latency.Milliseconds(),
		Entities:      result.Entities,
		Metadata:      result.Metadata,
	}
	s.publishRoutingCompleted(req, result, latency)
	c.JSON(http.StatusOK, resp)
}

// publishRoutingCompleted emits the routing_completed event the history
// journal and hooks consume. The trace stream gets its own richer events
// through the chain's tracer; this payload additionally carries the prompt,
// which trace events deliberately omit.
func (s *Server) publishRoutingCompleted(req *routing.RequestContext, result *routing.RoutingResult, latency time.Duration) {
	if s.deps.Bus == nil {
		return
	}
	payload := map[string]any{
		"prompt":     req.Prompt,
		"intent":     result.Intent,
		"agent":      string(result.SelectedAgent()),
		"method":     string(result.Method),
		"confidence": result.Confidence,
		"cache_hit":  result.CacheHit(),
		"latency_ms": latency.Milliseconds(),
		"request_id": req.RequestID,
	}
	if req.SessionID != "" {
		payload["session_id"] = req.SessionID
	}
	if req.UserID != "" {
		payload["user_id"] = req.UserID
	}
	s.deps.Bus.PublishAsync(hooks.NewEvent(hooks.EventRoutingCompleted, payload))
}
