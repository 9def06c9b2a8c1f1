// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides mockprovider, a standalone OpenAI-compatible
// classifier stub for developing and demoing AgentHive without a real LLM
// key. Point an openai-compat provider block at it and the llm_router node
// gets deterministic keyword-based classifications. It speaks only the wire
// protocol and deliberately imports nothing from the router, so it builds
// and ships on its own.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// classification mirrors the JSON contract the router's classifier node
// parses out of the assistant message.
type classification struct {
	AgentType  string  `json:"agent_type"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

const mockModel = "mock-classifier"

// domains maps each agent to the keywords that claim a prompt for it.
// First hit wins, so the order encodes the same "problems beat domain
// keywords" preference the built-in regex rules have.
var domains = []struct {
	agent    string
	intent   string
	keywords []string
}{
	{"support", "technical_support", []string{"bug", "error", "crash", "broken", "not working", "fails", "failed", "outage", "down", "can't log", "cannot log"}},
	{"sales", "sales_inquiry", []string{"buy", "buying", "purchase", "sell", "selling", "invest", "offer", "listing", "pricing", "for sale"}},
	{"lease", "lease_inquiry", []string{"lease", "rent", "rental", "tenant", "landlord", "deposit", "renewal"}},
	{"hr", "hr_request", []string{"payroll", "paycheck", "vacation", "pto", "benefits", "onboarding", "hiring", "time off"}},
	{"it", "it_request", []string{"vpn", "password", "laptop", "workstation", "email access", "account locked", "2fa"}},
	{"finance", "billing_inquiry", []string{"invoice", "refund", "billing", "expense", "budget", "payment", "charge"}},
}

func main() {
	listenAddr := flag.String("listen-address", "", "Address to listen on (e.g., 127.0.0.1:11435)")
	flag.Parse()

	secret := os.Getenv("MOCK_PROVIDER_KEY")
	if secret == "" {
		log.Printf("MOCK_PROVIDER_KEY not set; accepting unauthenticated requests")
	}

	http.Handle("/chat/completions", authMiddleware(secret, http.HandlerFunc(handleChat)))
	http.Handle("/v1/chat/completions", authMiddleware(secret, http.HandlerFunc(handleChat)))
	http.HandleFunc("/models", handleModels)
	http.HandleFunc("/v1/models", handleModels)

	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "11435"
	}

	var addr string
	if *listenAddr != "" {
		addr = *listenAddr
	} else {
		// Secure default: bind to localhost only
		addr = "127.0.0.1:" + port
	}

	log.Printf("AgentHive mock provider listening on %s...", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

// authMiddleware enforces the bearer key when one is configured. A missing
// header is 401, a present-but-wrong one is 403.
func authMiddleware(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret != "" {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			if token == header || token != secret {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	// The router sends the prompt as the final user message; everything
	// before it is system instructions and replayed history.
	prompt := ""
	promptChars := 0
	for _, msg := range req.Messages {
		promptChars += len(msg.Content)
		if msg.Role == "user" {
			prompt = msg.Content
		}
	}
	if prompt == "" {
		http.Error(w, "No user message", http.StatusBadRequest)
		return
	}

	content, err := json.Marshal(classify(prompt))
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	model := req.Model
	if model == "" {
		model = mockModel
	}
	resp := chatResponse{
		ID:      fmt.Sprintf("chatcmpl-mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: string(content)},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     promptChars/4 + 1,
			CompletionTokens: len(content)/4 + 1,
			TotalTokens:      promptChars/4 + len(content)/4 + 2,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

// classify picks an agent by keyword. Deterministic on purpose: the same
// prompt always routes the same way, which is what demos and cache tests
// want from a stand-in classifier.
func classify(prompt string) classification {
	lowered := strings.ToLower(prompt)
	for _, domain := range domains {
		for _, keyword := range domain.keywords {
			if strings.Contains(lowered, keyword) {
				return classification{
					AgentType:  domain.agent,
					Intent:     domain.intent,
					Confidence: 0.9,
					Reasoning:  fmt.Sprintf("prompt mentions %q", keyword),
				}
			}
		}
	}
	return classification{
		AgentType:  "general",
		Intent:     "general_query",
		Confidence: 0.4,
		Reasoning:  "no specialist keywords found",
	}
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"object":"list","data":[{"id":%q,"object":"model"}]}`, mockModel)
}
