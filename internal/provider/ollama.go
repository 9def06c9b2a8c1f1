// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/agenthive/agenthive/internal/config"
	"github.com/agenthive/agenthive/internal/routing"
)

// Ollama integrates locally running Ollama instances via their native chat
// API (default: http://localhost:11434).
type Ollama struct {
	name    string
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an adapter for a local Ollama daemon.
func NewOllama(cfg config.ProviderConfig) (*Ollama, error) {
	baseURL := "http://localhost:11434"
	if cfg.BaseURL != "" {
		baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Ollama{
		name:    cfg.Name,
		baseURL: baseURL,
		model:   cfg.Model,
		client:  newHTTPClient(timeout),
	}, nil
}

func (p *Ollama) Identifier() string { return p.name }

// Complete converts the request into Ollama's chat format, executes it, and
// maps eval counts back into token usage.
func (p *Ollama) Complete(ctx context.Context, req routing.CompletionRequest) (routing.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	if model == "" {
		return routing.CompletionResponse{}, fmt.Errorf("provider %s: no model configured", p.name)
	}

	ollamaReq := map[string]interface{}{
		"model":    model,
		"messages": req.Messages,
		"stream":   false,
	}
	options := map[string]interface{}{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		ollamaReq["options"] = options
	}

	reqBody, err := json.Marshal(ollamaReq)
	if err != nil {
		return routing.CompletionResponse{}, fmt.Errorf("marshal ollama request: %w", err)
	}

	log.Debugf("ollama request: %s", string(reqBody))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return routing.CompletionResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return routing.CompletionResponse{}, err
	}
	defer func() {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("ollama provider: close response body error: %v", errClose)
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(httpResp.Body)
		log.Debugf("provider %s error, status: %d, body: %s", p.name, httpResp.StatusCode, truncateForLog(b))
		return routing.CompletionResponse{}, newStatusErr(httpResp, b)
	}

	var ollamaResp struct {
		Model   string `json:"model"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Done            bool `json:"done"`
		PromptEvalCount int  `json:"prompt_eval_count"`
		EvalCount       int  `json:"eval_count"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&ollamaResp); err != nil {
		return routing.CompletionResponse{}, fmt.Errorf("parse ollama response: %w", err)
	}

	log.Debugf("ollama response: model=%s, content_len=%d", ollamaResp.Model, len(ollamaResp.Message.Content))

	usage := &routing.TokenUsage{
		PromptTokens:     ollamaResp.PromptEvalCount,
		CompletionTokens: ollamaResp.EvalCount,
		TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
	}
	if usage.TotalTokens == 0 {
		usage = estimateUsage(model, req.Messages, ollamaResp.Message.Content)
	}
	return routing.CompletionResponse{
		Content:  ollamaResp.Message.Content,
		Model:    ollamaResp.Model,
		Provider: p.name,
		Usage:    usage,
	}, nil
}

// Healthy probes the tags endpoint, which lists installed models.
func (p *Ollama) Healthy(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer func() {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("ollama provider: close response body error: %v", errClose)
		}
	}()
	_, _ = io.Copy(io.Discard, httpResp.Body)
	return httpResp.StatusCode == http.StatusOK
}
