// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package history

import "time"

// EntryFromEvent converts a routing-completed event payload into a journal
// entry. Missing keys degrade to zero values; a payload without a prompt
// returns nil so subscribers can skip unrelated events cheaply.
func EntryFromEvent(payload map[string]any) *Entry {
	if payload == nil {
		return nil
	}
	prompt, _ := payload["prompt"].(string)
	if prompt == "" {
		return nil
	}

	entry := &Entry{
		Timestamp:  time.Now(),
		Prompt:     prompt,
		Confidence: floatFromAny(payload["confidence"]),
		LatencyMs:  intFromAny(payload["latency_ms"]),
	}
	entry.Intent, _ = payload["intent"].(string)
	entry.Agent, _ = payload["agent"].(string)
	entry.Method, _ = payload["method"].(string)
	entry.CacheHit, _ = payload["cache_hit"].(bool)
	entry.SessionID, _ = payload["session_id"].(string)
	entry.UserID, _ = payload["user_id"].(string)
	entry.RequestID, _ = payload["request_id"].(string)
	if meta, ok := payload["metadata"].(map[string]any); ok {
		entry.Metadata = meta
	}
	if ts, ok := payload["timestamp"].(time.Time); ok && !ts.IsZero() {
		entry.Timestamp = ts
	}
	return entry
}

func floatFromAny(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func intFromAny(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
