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
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/agenthive/agenthive/internal/config"
	"github.com/agenthive/agenthive/internal/routing"
)

// OpenAICompat talks to any /chat/completions endpoint: OpenAI, OpenRouter,
// Groq, vLLM, LM Studio. Credentials are a static API key, or OAuth2 client
// credentials with automatic token refresh when the provider block carries
// a token-url.
type OpenAICompat struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	oauth   bool
}

// NewOpenAICompat creates an adapter bound to a provider config block.
func NewOpenAICompat(cfg config.ProviderConfig) (*OpenAICompat, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider %s: base-url is required", cfg.Name)
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := newHTTPClient(timeout)
	oauth := false
	if cfg.Auth.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			TokenURL:     cfg.Auth.TokenURL,
			Scopes:       cfg.Auth.Scopes,
		}
		// Token refresh rides the same pooled transport as completions.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = cc.Client(ctx)
		client.Timeout = timeout
		oauth = true
	}
	return &OpenAICompat{
		name:    cfg.Name,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  client,
		oauth:   oauth,
	}, nil
}

// Identifier reports the provider name used in logs, metrics, and circuit state.
func (p *OpenAICompat) Identifier() string { return p.name }

// Complete sends a chat completion and returns the assistant message. A
// request that names no model gets the provider's configured default
// injected into the payload.
func (p *OpenAICompat) Complete(ctx context.Context, req routing.CompletionRequest) (routing.CompletionResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return routing.CompletionResponse{}, fmt.Errorf("marshal completion request: %w", err)
	}
	if req.Model == "" && p.model != "" {
		payload, _ = sjson.SetBytes(payload, "model", p.model)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return routing.CompletionResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" && !p.oauth {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return routing.CompletionResponse{}, err
	}
	defer func() {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("openai compat provider: close response body error: %v", errClose)
		}
	}()
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		b, _ := io.ReadAll(httpResp.Body)
		log.Debugf("provider %s error, status: %d, body: %s", p.name, httpResp.StatusCode, truncateForLog(b))
		return routing.CompletionResponse{}, newStatusErr(httpResp, b)
	}
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return routing.CompletionResponse{}, err
	}

	content := gjson.GetBytes(body, "choices.0.message.content").String()
	if content == "" {
		return routing.CompletionResponse{}, fmt.Errorf("provider %s: empty completion", p.name)
	}
	resp := routing.CompletionResponse{
		Content:  content,
		Model:    gjson.GetBytes(body, "model").String(),
		Provider: p.name,
	}
	resp.Usage = parseUsage(body)
	if resp.Usage == nil {
		model := req.Model
		if model == "" {
			model = p.model
		}
		resp.Usage = estimateUsage(model, req.Messages, content)
	}
	return resp, nil
}

// Healthy probes the models listing endpoint.
func (p *OpenAICompat) Healthy(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	if p.apiKey != "" && !p.oauth {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer func() {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("openai compat provider: close response body error: %v", errClose)
		}
	}()
	_, _ = io.Copy(io.Discard, httpResp.Body)
	return httpResp.StatusCode >= 200 && httpResp.StatusCode < 300
}

// parseUsage extracts token accounting when the upstream reports it. A zero
// or absent usage block returns nil so the caller can estimate instead.
func parseUsage(body []byte) *routing.TokenUsage {
	usage := gjson.GetBytes(body, "usage")
	if !usage.Exists() {
		return nil
	}
	prompt := int(usage.Get("prompt_tokens").Int())
	completion := int(usage.Get("completion_tokens").Int())
	total := int(usage.Get("total_tokens").Int())
	if prompt == 0 && completion == 0 && total == 0 {
		return nil
	}
	if total == 0 {
		total = prompt + completion
	}
	return &routing.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	}
}
