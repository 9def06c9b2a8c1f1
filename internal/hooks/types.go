package hooks

import (
	"time"
)

// EventName identifies a runtime event that can trigger hooks.
type EventName string

const (
	EventRoutingCompleted    EventName = "routing_completed"
	EventProviderFailure     EventName = "provider_failure"
	EventCircuitStateChanged EventName = "circuit_state_changed"
	EventCacheInvalidated    EventName = "cache_invalidated"
	EventRulesLoaded         EventName = "rules_loaded"
)

// AllEvents returns every event name the runtime publishes.
func AllEvents() []EventName {
	return []EventName{
		EventRoutingCompleted,
		EventProviderFailure,
		EventCircuitStateChanged,
		EventCacheInvalidated,
		EventRulesLoaded,
	}
}

// KnownEvent reports whether name is one of the published event names.
func KnownEvent(name EventName) bool {
	for _, evt := range AllEvents() {
		if evt == name {
			return true
		}
	}
	return false
}

// ActionName identifies the action performed when a hook matches.
type ActionName string

const (
	ActionLogWarning    ActionName = "log_warning"
	ActionNotifyWebhook ActionName = "notify_webhook"
	ActionRunCommand    ActionName = "run_command"
)

// Hook represents a single automation rule loaded from a YAML file.
type Hook struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Event       EventName      `yaml:"event" json:"event"`
	Condition   string         `yaml:"condition" json:"condition"`
	Action      ActionName     `yaml:"action" json:"action"`
	Params      map[string]any `yaml:"params" json:"params"`
	Enabled     bool           `yaml:"enabled" json:"enabled"`

	// FilePath is the source file (not in YAML)
	FilePath string `yaml:"-" json:"-"`
}

// Event is a single runtime occurrence delivered to subscribers. Payload
// carries event-specific fields keyed the same way the routing journal and
// trace stream key them (agent, method, provider, latency_ms, ...).
type Event struct {
	Name      EventName      `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an Event stamped with the current time.
func NewEvent(name EventName, payload map[string]any) *Event {
	return &Event{
		Name:      name,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// ActionHandler is a function that executes a hook action.
type ActionHandler func(hook *Hook, evt *Event) error
