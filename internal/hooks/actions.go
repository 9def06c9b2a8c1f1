package hooks

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const (
	webhookUserAgent = "agenthive-hooks/1.0"
	webhookTimeout   = 5 * time.Second

	// webhookRateLimit caps deliveries per URL per minute.
	webhookRateLimit = 10
)

// RegisterBuiltInActions registers the default action handlers.
func RegisterBuiltInActions(m *Manager) {
	m.RegisterAction(ActionLogWarning, handleLogWarning)
	// The webhook handler is stateful (per-URL rate limits).
	wh := NewWebhookHandler()
	m.RegisterAction(ActionNotifyWebhook, wh.Handle)
	m.RegisterAction(ActionRunCommand, handleRunCommand)
}

func handleLogWarning(hook *Hook, evt *Event) error {
	msg, _ := hook.Params["message"].(string)
	if msg == "" {
		msg = "Hook triggered"
	}
	log.Warnf("[Hook: %s] %s (Event: %s)", hook.Name, msg, evt.Name)
	return nil
}

// WebhookHandler delivers hook notifications over HTTP with per-URL rate
// limiting, HMAC signing, and bounded retries.
type WebhookHandler struct {
	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	client       *http.Client
}

type rateLimiter struct {
	count    int
	lastTime time.Time
}

func NewWebhookHandler() *WebhookHandler {
	return &WebhookHandler{
		rateLimiters: make(map[string]*rateLimiter),
		client:       &http.Client{Timeout: webhookTimeout},
	}
}

// Handle posts the event to the hook's configured URL. The body is signed
// with HMAC-SHA256 when a secret param is set.
func (h *WebhookHandler) Handle(hook *Hook, evt *Event) error {
	url, _ := hook.Params["url"].(string)
	if url == "" {
		return fmt.Errorf("missing webhook url")
	}

	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://localhost") {
		return fmt.Errorf("insecure webhook url (must be https or localhost): %s", url)
	}

	if !h.checkRateLimit(url) {
		return fmt.Errorf("rate limit exceeded for webhook: %s", url)
	}

	secret, _ := hook.Params["secret"].(string)

	notification := map[string]any{
		"event":     evt.Name,
		"timestamp": evt.Timestamp,
		"hook_id":   hook.ID,
		"hook_name": hook.Name,
	}
	if len(evt.Payload) > 0 {
		notification["payload"] = evt.Payload
	}

	body, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	// Three retries: 1s, 2s, 4s.
	backoff := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	var lastErr error

	for attempt := 0; attempt <= len(backoff); attempt++ {
		if attempt > 0 {
			time.Sleep(backoff[attempt-1])
		}

		req, err := http.NewRequest("POST", url, bytes.NewReader(body))
		if err != nil {
			return err
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", webhookUserAgent)

		if secret != "" {
			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write(body)
			req.Header.Set("X-Hook-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
		}

		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = err
			log.Warnf("Webhook attempt %d failed: %v", attempt+1, err)
			continue
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			log.Warnf("Webhook attempt %d failed with status %d", attempt+1, resp.StatusCode)
			continue
		}

		return nil
	}

	return fmt.Errorf("webhook failed after retries: %v", lastErr)
}

func (h *WebhookHandler) checkRateLimit(url string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	limiter, ok := h.rateLimiters[url]
	if !ok {
		limiter = &rateLimiter{lastTime: now}
		h.rateLimiters[url] = limiter
	}

	if now.Sub(limiter.lastTime) > time.Minute {
		limiter.count = 0
		limiter.lastTime = now
	}

	if limiter.count >= webhookRateLimit {
		return false
	}

	limiter.count++
	return true
}

// allowedCommands is the whitelist for the run_command action. Anything
// outside it is refused regardless of hook configuration.
var allowedCommands = []string{"echo", "logger", "notify-send"}

func handleRunCommand(hook *Hook, evt *Event) error {
	cmdStr, _ := hook.Params["command"].(string)
	if cmdStr == "" {
		return fmt.Errorf("missing command")
	}

	parts := strings.Fields(cmdStr)
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}

	allowed := false
	for _, name := range allowedCommands {
		if parts[0] == name {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("command %q is not whitelisted", parts[0])
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("command failed: %v, output: %s", err, string(out))
	}

	return nil
}
