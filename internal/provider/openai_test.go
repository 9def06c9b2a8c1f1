// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/agenthive/agenthive/internal/config"
	"github.com/agenthive/agenthive/internal/routing"
)

const classifierReply = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"model": "qwen2.5-7b",
	"choices": [
		{"index": 0, "message": {"role": "assistant", "content": "{\"agent_type\": \"lease\"}"}, "finish_reason": "stop"}
	],
	"usage": {"prompt_tokens": 42, "completion_tokens": 9, "total_tokens": 51}
}`

func classifierRequest() routing.CompletionRequest {
	return routing.CompletionRequest{
		Messages: []routing.Message{
			{Role: "system", Content: "You are a routing classifier."},
			{Role: "user", Content: "where is my lease agreement?"},
		},
		Temperature: 0.1,
		MaxTokens:   256,
	}
}

func TestOpenAICompatComplete(t *testing.T) {
	var gotPath, gotAuth, gotAgent, gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(classifierReply))
	}))
	defer srv.Close()

	p, err := NewOpenAICompat(config.ProviderConfig{
		Name:    "local",
		Type:    "openai-compat",
		BaseURL: srv.URL + "/v1/",
		APIKey:  "sk-test",
		Model:   "qwen2.5-7b",
	})
	if err != nil {
		t.Fatalf("NewOpenAICompat() error = %v", err)
	}

	resp, err := p.Complete(context.Background(), classifierRequest())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("request path = %q, want /v1/chat/completions", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotAgent != userAgent {
		t.Errorf("User-Agent = %q, want %q", gotAgent, userAgent)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if model := gjson.GetBytes(gotBody, "model").String(); model != "qwen2.5-7b" {
		t.Errorf("payload model = %q, want default qwen2.5-7b injected", model)
	}
	if n := gjson.GetBytes(gotBody, "messages.#").Int(); n != 2 {
		t.Errorf("payload carries %d messages, want 2", n)
	}
	if resp.Content != `{"agent_type": "lease"}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Model != "qwen2.5-7b" {
		t.Errorf("Model = %q, want qwen2.5-7b", resp.Model)
	}
	if resp.Provider != "local" {
		t.Errorf("Provider = %q, want local", resp.Provider)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 51 {
		t.Errorf("Usage = %+v, want total 51", resp.Usage)
	}
}

func TestOpenAICompatKeepsRequestModel(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(classifierReply))
	}))
	defer srv.Close()

	p, err := NewOpenAICompat(config.ProviderConfig{Name: "local", BaseURL: srv.URL, Model: "default-model"})
	if err != nil {
		t.Fatalf("NewOpenAICompat() error = %v", err)
	}
	req := classifierRequest()
	req.Model = "phi-4"
	if _, err := p.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if model := gjson.GetBytes(gotBody, "model").String(); model != "phi-4" {
		t.Errorf("payload model = %q, want request model phi-4 preserved", model)
	}
}

func TestOpenAICompatStatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		wantDelay  time.Duration
	}{
		{name: "rate limited with retry hint", status: http.StatusTooManyRequests, retryAfter: "7", wantDelay: 7 * time.Second},
		{name: "upstream failure", status: http.StatusInternalServerError},
		{name: "bad credentials", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "nope"}}`))
			}))
			defer srv.Close()

			p, err := NewOpenAICompat(config.ProviderConfig{Name: "flaky", BaseURL: srv.URL})
			if err != nil {
				t.Fatalf("NewOpenAICompat() error = %v", err)
			}
			_, err = p.Complete(context.Background(), classifierRequest())
			if err == nil {
				t.Fatal("Complete() expected error")
			}
			var serr statusErr
			if !errors.As(err, &serr) {
				t.Fatalf("error %v is not a statusErr", err)
			}
			if serr.StatusCode() != tt.status {
				t.Errorf("StatusCode() = %d, want %d", serr.StatusCode(), tt.status)
			}
			if tt.wantDelay > 0 {
				if serr.RetryAfter() == nil || *serr.RetryAfter() != tt.wantDelay {
					t.Errorf("RetryAfter() = %v, want %v", serr.RetryAfter(), tt.wantDelay)
				}
			} else if serr.RetryAfter() != nil {
				t.Errorf("RetryAfter() = %v, want nil", serr.RetryAfter())
			}
		})
	}
}

func TestOpenAICompatEstimatesMissingUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model": "qwen2.5-7b", "choices": [{"message": {"role": "assistant", "content": "classification text"}}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAICompat(config.ProviderConfig{Name: "local", BaseURL: srv.URL, Model: "qwen2.5-7b"})
	if err != nil {
		t.Fatalf("NewOpenAICompat() error = %v", err)
	}
	resp, err := p.Complete(context.Background(), classifierRequest())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Usage == nil {
		t.Fatal("Usage is nil, want estimate")
	}
	if resp.Usage.PromptTokens <= 0 || resp.Usage.CompletionTokens <= 0 {
		t.Errorf("estimated usage = %+v, want positive counts", resp.Usage)
	}
	if resp.Usage.TotalTokens != resp.Usage.PromptTokens+resp.Usage.CompletionTokens {
		t.Errorf("TotalTokens = %d, want prompt+completion", resp.Usage.TotalTokens)
	}
}

func TestOpenAICompatEmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	p, err := NewOpenAICompat(config.ProviderConfig{Name: "local", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAICompat() error = %v", err)
	}
	if _, err := p.Complete(context.Background(), classifierRequest()); err == nil {
		t.Fatal("Complete() expected error for empty choices")
	}
}

func TestOpenAICompatOAuthClientCredentials(t *testing.T) {
	var tokenCalls int
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "tok-abc", "token_type": "Bearer", "expires_in": 3600}`))
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(classifierReply))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := NewOpenAICompat(config.ProviderConfig{
		Name:    "corp",
		BaseURL: srv.URL,
		APIKey:  "static-key-must-not-be-used",
		Auth: config.ProviderAuth{
			TokenURL:     srv.URL + "/oauth/token",
			ClientID:     "router",
			ClientSecret: "hunter2",
			Scopes:       []string{"completions"},
		},
	})
	if err != nil {
		t.Fatalf("NewOpenAICompat() error = %v", err)
	}

	if _, err := p.Complete(context.Background(), classifierRequest()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("Authorization = %q, want Bearer tok-abc", gotAuth)
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint called %d times, want 1", tokenCalls)
	}

	// A fresh token is not fetched while the cached one is still valid.
	if _, err := p.Complete(context.Background(), classifierRequest()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint called %d times after reuse, want 1", tokenCalls)
	}
}

func TestOpenAICompatHealthy(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	p, err := NewOpenAICompat(config.ProviderConfig{Name: "local", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAICompat() error = %v", err)
	}
	if !p.Healthy(context.Background()) {
		t.Error("Healthy() = false for a live endpoint")
	}
	if gotPath != "/v1/models" {
		t.Errorf("health probe path = %q, want /v1/models", gotPath)
	}

	srv.Close()
	if p.Healthy(context.Background()) {
		t.Error("Healthy() = true for a dead endpoint")
	}
}

func TestOpenAICompatRequiresBaseURL(t *testing.T) {
	if _, err := NewOpenAICompat(config.ProviderConfig{Name: "nourl"}); err == nil {
		t.Fatal("NewOpenAICompat() expected error for missing base-url")
	}
}

func TestNewSelectsAdapter(t *testing.T) {
	p, err := New(config.ProviderConfig{Name: "a", Type: "openai-compat", BaseURL: "http://example.test"})
	if err != nil {
		t.Fatalf("New(openai-compat) error = %v", err)
	}
	if _, ok := p.(*OpenAICompat); !ok {
		t.Errorf("New(openai-compat) = %T, want *OpenAICompat", p)
	}

	p, err = New(config.ProviderConfig{Name: "b", Type: "ollama"})
	if err != nil {
		t.Fatalf("New(ollama) error = %v", err)
	}
	if _, ok := p.(*Ollama); !ok {
		t.Errorf("New(ollama) = %T, want *Ollama", p)
	}

	if _, err := New(config.ProviderConfig{Name: "c", Type: "anthropic"}); err == nil {
		t.Error("New(anthropic) expected unknown type error")
	}
}

func TestParseUsage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want *routing.TokenUsage
	}{
		{
			name: "reported in full",
			body: `{"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}}`,
			want: &routing.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
		{
			name: "total derived",
			body: `{"usage": {"prompt_tokens": 10, "completion_tokens": 5}}`,
			want: &routing.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
		{name: "absent", body: `{}`, want: nil},
		{name: "zeroed", body: `{"usage": {"prompt_tokens": 0, "completion_tokens": 0, "total_tokens": 0}}`, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseUsage([]byte(tt.body))
			if tt.want == nil {
				if got != nil {
					t.Errorf("parseUsage() = %+v, want nil", got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Errorf("parseUsage() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
