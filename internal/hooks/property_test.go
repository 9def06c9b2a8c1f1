package hooks

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_HookTriggering checks that a hook fires exactly when its
// condition holds, across arbitrary payloads and event names.
func TestProperty_HookTriggering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("hooks fire iff the condition matches", prop.ForAll(
		func(latency int, eventName string) bool {
			tmpDir, err := os.MkdirTemp("", "hooks-prop-*")
			if err != nil {
				return false
			}
			defer os.RemoveAll(tmpDir)

			evt := EventName(eventName)

			hook := Hook{
				ID:        "prop-hook",
				Name:      "Prop Hook",
				Event:     evt,
				Condition: "Payload.latency_ms > 250",
				Action:    "prop_action",
				Enabled:   true,
			}
			data, err := yaml.Marshal(hook)
			if err != nil {
				return false
			}
			if err := os.WriteFile(filepath.Join(tmpDir, "hook.yaml"), data, 0644); err != nil {
				return false
			}

			bus := NewBus()
			defer bus.Shutdown()

			manager, err := NewManager(tmpDir, bus)
			if err != nil {
				return false
			}

			var triggered atomic.Bool
			manager.RegisterAction("prop_action", func(h *Hook, e *Event) error {
				triggered.Store(true)
				return nil
			})

			if err := manager.Load(); err != nil {
				return false
			}
			manager.SubscribeAll()

			bus.Publish(&Event{
				Name:      evt,
				Timestamp: time.Now(),
				Payload: map[string]any{
					"latency_ms": latency,
				},
			})

			shouldTrigger := latency > 250
			if shouldTrigger {
				// Actions run on their own goroutine; poll briefly.
				deadline := time.Now().Add(500 * time.Millisecond)
				for time.Now().Before(deadline) {
					if triggered.Load() {
						return true
					}
					time.Sleep(5 * time.Millisecond)
				}
				return false
			}

			time.Sleep(50 * time.Millisecond)
			return !triggered.Load()
		},
		gen.IntRange(0, 500),
		gen.OneConstOf("routing_completed", "provider_failure", "cache_invalidated"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
