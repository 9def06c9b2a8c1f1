package hooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHandleLogWarning(t *testing.T) {
	hook := &Hook{
		ID:   "warn-hook",
		Name: "Warn Hook",
		Params: map[string]any{
			"message": "Circuit opened",
		},
	}

	evt := &Event{
		Name:      EventCircuitStateChanged,
		Timestamp: time.Now(),
		Payload:   map[string]any{"provider": "ollama-local"},
	}

	if err := handleLogWarning(hook, evt); err != nil {
		t.Fatalf("handleLogWarning failed: %v", err)
	}

	// No message parameter falls back to a default
	hook.Params = map[string]any{}
	if err := handleLogWarning(hook, evt); err != nil {
		t.Fatalf("handleLogWarning with no message failed: %v", err)
	}
}

func TestWebhookHandlerSuccess(t *testing.T) {
	var receivedNotification map[string]any
	var receivedHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &receivedNotification)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// The handler only accepts https or localhost URLs
	serverURL := strings.Replace(server.URL, "127.0.0.1", "localhost", 1)

	handler := NewWebhookHandler()
	hook := &Hook{
		ID:   "webhook-hook",
		Name: "Webhook Test",
		Params: map[string]any{
			"url":    serverURL,
			"secret": "test-secret",
		},
	}

	evt := &Event{
		Name:      EventProviderFailure,
		Timestamp: time.Now(),
		Payload: map[string]any{
			"provider": "openai-main",
			"error":    "connection refused",
		},
	}

	if err := handler.Handle(hook, evt); err != nil {
		t.Fatalf("Webhook handler failed: %v", err)
	}

	if receivedNotification["event"] != string(EventProviderFailure) {
		t.Errorf("Expected event %s, got %v", EventProviderFailure, receivedNotification["event"])
	}
	if receivedNotification["hook_id"] != "webhook-hook" {
		t.Errorf("Expected hook_id webhook-hook, got %v", receivedNotification["hook_id"])
	}
	payload, ok := receivedNotification["payload"].(map[string]any)
	if !ok {
		t.Fatalf("Expected payload object, got %T", receivedNotification["payload"])
	}
	if payload["provider"] != "openai-main" {
		t.Errorf("Expected payload provider openai-main, got %v", payload["provider"])
	}

	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Error("Expected Content-Type: application/json")
	}
	if receivedHeaders.Get("User-Agent") != webhookUserAgent {
		t.Errorf("Expected User-Agent %s, got %s", webhookUserAgent, receivedHeaders.Get("User-Agent"))
	}

	signature := receivedHeaders.Get("X-Hook-Signature")
	if signature == "" {
		t.Error("Expected X-Hook-Signature header")
	}
	if !strings.HasPrefix(signature, "sha256=") {
		t.Error("Expected signature to start with sha256=")
	}
}

func TestWebhookHandlerURLValidation(t *testing.T) {
	handler := NewWebhookHandler()

	testCases := []struct {
		url         string
		shouldError bool
		description string
	}{
		{"http://example.com/webhook", true, "HTTP non-localhost should be rejected"},
		{"ftp://example.com/webhook", true, "Non-HTTP protocol should be rejected"},
		{"", true, "Empty URL should be rejected"},
	}

	for _, tc := range testCases {
		hook := &Hook{
			Params: map[string]any{"url": tc.url},
		}
		evt := &Event{Name: EventProviderFailure}

		err := handler.Handle(hook, evt)
		if tc.shouldError && err == nil {
			t.Errorf("%s: expected error but got none", tc.description)
		}
		if !tc.shouldError && err != nil {
			t.Errorf("%s: expected no error but got: %v", tc.description, err)
		}
	}
}

func TestWebhookHandlerRateLimit(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	serverURL := strings.Replace(server.URL, "127.0.0.1", "localhost", 1)

	handler := NewWebhookHandler()
	hook := &Hook{
		Params: map[string]any{"url": serverURL},
	}
	evt := &Event{Name: EventRoutingCompleted}

	for i := 0; i < webhookRateLimit; i++ {
		if err := handler.Handle(hook, evt); err != nil {
			t.Fatalf("Call %d failed: %v", i+1, err)
		}
	}

	err := handler.Handle(hook, evt)
	if err == nil {
		t.Error("Expected rate limit error after limit reached")
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("Expected rate limit error, got: %v", err)
	}

	if callCount != webhookRateLimit {
		t.Errorf("Expected %d server calls, got %d", webhookRateLimit, callCount)
	}
}

func TestWebhookHandlerRetry(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount < 3 {
			w.WriteHeader(http.StatusInternalServerError)
		} else {
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	serverURL := strings.Replace(server.URL, "127.0.0.1", "localhost", 1)

	handler := NewWebhookHandler()
	hook := &Hook{
		Params: map[string]any{"url": serverURL},
	}
	evt := &Event{Name: EventProviderFailure}

	start := time.Now()
	err := handler.Handle(hook, evt)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Webhook should succeed after retries: %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (2 retries), got %d", callCount)
	}

	// 1s + 2s backoff before the third attempt
	if duration < 3*time.Second {
		t.Errorf("Expected at least 3s duration for retries, got %v", duration)
	}
}

func TestWebhookHandlerRetryFailure(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	serverURL := strings.Replace(server.URL, "127.0.0.1", "localhost", 1)

	handler := NewWebhookHandler()
	hook := &Hook{
		Params: map[string]any{"url": serverURL},
	}
	evt := &Event{Name: EventProviderFailure}

	err := handler.Handle(hook, evt)
	if err == nil {
		t.Error("Expected webhook to fail after all retries")
	}
	if !strings.Contains(err.Error(), "webhook failed after retries") {
		t.Errorf("Expected retry failure error, got: %v", err)
	}

	if callCount != 4 {
		t.Errorf("Expected 4 calls (initial + 3 retries), got %d", callCount)
	}
}

func TestWebhookHandlerSignature(t *testing.T) {
	var receivedSignature string
	var receivedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedSignature = r.Header.Get("X-Hook-Signature")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	serverURL := strings.Replace(server.URL, "127.0.0.1", "localhost", 1)

	handler := NewWebhookHandler()
	hook := &Hook{
		Params: map[string]any{
			"url":    serverURL,
			"secret": "test-secret-key",
		},
	}
	evt := &Event{
		Name:      EventCacheInvalidated,
		Timestamp: time.Now(),
		Payload:   map[string]any{"entries": 42},
	}

	if err := handler.Handle(hook, evt); err != nil {
		t.Fatalf("Webhook failed: %v", err)
	}

	if !strings.HasPrefix(receivedSignature, "sha256=") {
		t.Errorf("Expected signature to start with sha256=, got: %s", receivedSignature)
	}

	mac := hmac.New(sha256.New, []byte("test-secret-key"))
	mac.Write(receivedBody)
	expectedSignature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if receivedSignature != expectedSignature {
		t.Errorf("Signature mismatch. Expected: %s, Got: %s", expectedSignature, receivedSignature)
	}
}

func TestWebhookHandlerConcurrentRateLimit(t *testing.T) {
	callCount := 0
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		callCount++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	serverURL := strings.Replace(server.URL, "127.0.0.1", "localhost", 1)

	handler := NewWebhookHandler()
	hook := &Hook{
		Params: map[string]any{"url": serverURL},
	}

	var wg sync.WaitGroup
	errors := make(chan error, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evt := &Event{Name: EventRoutingCompleted}
			errors <- handler.Handle(hook, evt)
		}()
	}

	wg.Wait()
	close(errors)

	successCount := 0
	rateLimitCount := 0
	for err := range errors {
		switch {
		case err == nil:
			successCount++
		case strings.Contains(err.Error(), "rate limit exceeded"):
			rateLimitCount++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if successCount != webhookRateLimit {
		t.Errorf("Expected %d successful calls, got %d", webhookRateLimit, successCount)
	}
	if rateLimitCount != 20-webhookRateLimit {
		t.Errorf("Expected %d rate limited calls, got %d", 20-webhookRateLimit, rateLimitCount)
	}

	mu.Lock()
	actualCallCount := callCount
	mu.Unlock()

	if actualCallCount != webhookRateLimit {
		t.Errorf("Expected %d server calls, got %d", webhookRateLimit, actualCallCount)
	}
}

func TestHandleRunCommand(t *testing.T) {
	testCases := []struct {
		command     string
		shouldError bool
		description string
	}{
		{"echo hello", false, "Allowed command should succeed"},
		{"logger routed to finance", false, "Logger command should succeed"},
		{"rm -rf /", true, "Dangerous command should be blocked"},
		{"cat /etc/passwd", true, "Unauthorized command should be blocked"},
		{"", true, "Empty command should fail"},
		{"   ", true, "Whitespace command should fail"},
	}

	for _, tc := range testCases {
		hook := &Hook{
			Params: map[string]any{"command": tc.command},
		}
		evt := &Event{Name: EventRulesLoaded}

		err := handleRunCommand(hook, evt)
		if tc.shouldError && err == nil {
			t.Errorf("%s: expected error but got none", tc.description)
		}
		if !tc.shouldError && err != nil {
			t.Errorf("%s: expected no error but got: %v", tc.description, err)
		}
	}
}

func TestHandleRunCommandMissingCommand(t *testing.T) {
	hook := &Hook{
		Params: map[string]any{},
	}
	evt := &Event{Name: EventRulesLoaded}

	err := handleRunCommand(hook, evt)
	if err == nil {
		t.Error("Expected error for missing command")
	}
	if !strings.Contains(err.Error(), "missing command") {
		t.Errorf("Expected 'missing command' error, got: %v", err)
	}
}

func TestRegisterBuiltInActions(t *testing.T) {
	manager, err := NewManager(t.TempDir(), NewBus())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	for _, action := range []ActionName{ActionLogWarning, ActionNotifyWebhook, ActionRunCommand} {
		manager.mu.RLock()
		_, ok := manager.actions[action]
		manager.mu.RUnlock()
		if !ok {
			t.Errorf("Expected built-in handler for action %s", action)
		}
	}
}

func BenchmarkHandleLogWarning(b *testing.B) {
	hook := &Hook{
		Name: "Bench Hook",
		Params: map[string]any{
			"message": "bench warning",
		},
	}
	evt := &Event{
		Name:      EventRoutingCompleted,
		Timestamp: time.Now(),
		Payload:   map[string]any{"agent": "support"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = handleLogWarning(hook, evt)
	}
}
