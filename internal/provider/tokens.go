// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/agenthive/agenthive/internal/routing"
)

var (
	codecMu    sync.Mutex
	codecCache = make(map[string]tokenizer.Codec)
)

// codecForModel resolves the tokenizer encoding for a model name, caching
// codecs per model. Unknown models fall back to cl100k_base, which is close
// enough for usage estimation.
func codecForModel(model string) tokenizer.Codec {
	codecMu.Lock()
	defer codecMu.Unlock()
	if codec, ok := codecCache[model]; ok {
		return codec
	}
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, _ = tokenizer.Get(tokenizer.Cl100kBase)
	}
	codecCache[model] = codec
	return codec
}

// estimateUsage approximates token usage for providers that do not report
// it. Each message costs its content tokens plus a small framing overhead.
func estimateUsage(model string, messages []routing.Message, completion string) *routing.TokenUsage {
	codec := codecForModel(model)
	prompt := 0
	for _, msg := range messages {
		prompt += countWith(codec, msg.Content) + 4
	}
	out := countWith(codec, completion)
	return &routing.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
	}
}

// countWith counts tokens with the given codec, estimating bytes/4 when no
// codec is available.
func countWith(codec tokenizer.Codec, text string) int {
	if codec != nil {
		if ids, _, err := codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}
