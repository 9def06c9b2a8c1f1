// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package provider implements the LLM adapters behind the classifier node:
// OpenAI-compatible endpoints (API key or OAuth2 client credentials) and
// local Ollama instances. Adapters translate between the routing package's
// provider-agnostic completion types and each provider's wire format.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"

	"github.com/agenthive/agenthive/internal/config"
	"github.com/agenthive/agenthive/internal/routing"
)

const (
	defaultTimeout = 60 * time.Second
	userAgent      = "agenthive-router"
)

// Provider is a routing completer with an identity and a health probe. The
// balancer consumes Identifier and Complete; the health endpoint reports
// Healthy.
type Provider interface {
	routing.Completer
	Identifier() string
	Healthy(ctx context.Context) bool
}

// New builds the adapter selected by cfg.Type.
func New(cfg config.ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "openai-compat":
		return NewOpenAICompat(cfg)
	case "ollama":
		return NewOllama(cfg)
	default:
		return nil, fmt.Errorf("provider %s: unknown type %q", cfg.Name, cfg.Type)
	}
}

// newHTTPClient builds the shared transport: pooled, HTTP/2-enabled, with a
// per-call ceiling independent of the request context.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if err := http2.ConfigureTransport(transport); err != nil {
		log.Warnf("HTTP/2 unavailable, continuing with HTTP/1.1: %v", err)
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// statusErr carries the HTTP status of a failed provider call so callers
// can distinguish rate limits from hard failures.
type statusErr struct {
	code       int
	msg        string
	retryAfter *time.Duration
}

func (e statusErr) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("status %d", e.code)
}

func (e statusErr) StatusCode() int            { return e.code }
func (e statusErr) RetryAfter() *time.Duration { return e.retryAfter }

// newStatusErr builds a statusErr from a non-2xx response, capturing a
// Retry-After hint when the provider sends one.
func newStatusErr(resp *http.Response, body []byte) statusErr {
	serr := statusErr{code: resp.StatusCode, msg: string(body)}
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			serr.retryAfter = &delay
		}
	}
	return serr
}

// truncateForLog caps provider error bodies at a loggable size.
func truncateForLog(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
