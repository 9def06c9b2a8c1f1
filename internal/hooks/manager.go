package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
)

// Manager loads hook definitions from a directory and runs matching hooks
// when events arrive on the bus. Hook files hot-reload via the watcher;
// the routing rule set itself never does.
type Manager struct {
	dir      string
	hooks    map[EventName][]*Hook
	bus      *Bus
	programs map[string]*vm.Program
	actions  map[ActionName]ActionHandler
	mu       sync.RWMutex

	watcher     *fsnotify.Watcher
	stopWatcher chan struct{}
}

// NewManager creates a hook manager reading definitions from dir. An empty
// dir defaults to "hooks" under the working directory. Built-in actions are
// registered immediately.
func NewManager(dir string, bus *Bus) (*Manager, error) {
	if dir == "" {
		dir = "hooks"
	}

	m := &Manager{
		dir:         dir,
		hooks:       make(map[EventName][]*Hook),
		bus:         bus,
		programs:    make(map[string]*vm.Program),
		actions:     make(map[ActionName]ActionHandler),
		stopWatcher: make(chan struct{}),
	}

	RegisterBuiltInActions(m)

	return m, nil
}

// Load reads every .yaml/.yml file under the hook directory and replaces
// the active hook set. Disabled hooks and hooks naming an unknown event are
// skipped. The compiled condition cache is cleared so edited conditions
// take effect.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.dir); os.IsNotExist(err) {
		if err := os.MkdirAll(m.dir, 0755); err != nil {
			return fmt.Errorf("failed to create hooks directory: %w", err)
		}
	}

	loaded := 0
	next := make(map[EventName][]*Hook)
	err := filepath.Walk(m.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || (!strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml")) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Errorf("Failed to read hook file %s: %v", path, err)
			return nil
		}

		var hook Hook
		if err := yaml.Unmarshal(data, &hook); err != nil {
			log.Errorf("Failed to parse hook %s: %v", path, err)
			return nil
		}

		hook.FilePath = path
		if !hook.Enabled {
			return nil
		}
		if !KnownEvent(hook.Event) {
			log.Warnf("Hook %s names unknown event %q, skipping", path, hook.Event)
			return nil
		}

		next[hook.Event] = append(next[hook.Event], &hook)
		loaded++
		log.Debugf("Loaded hook %s for event %s", hook.Name, hook.Event)
		return nil
	})

	if err != nil {
		return err
	}

	m.hooks = next
	m.programs = make(map[string]*vm.Program)

	log.Infof("Loaded %d hooks from %s", loaded, m.dir)
	return nil
}

// SubscribeAll subscribes the manager to every published event so a reload
// can introduce hooks for events that had none at startup.
func (m *Manager) SubscribeAll() {
	for _, evt := range AllEvents() {
		m.bus.Subscribe(evt, m.handleEvent)
	}
}

func (m *Manager) handleEvent(evt *Event) {
	m.mu.RLock()
	hooks := m.hooks[evt.Name]
	m.mu.RUnlock()

	if len(hooks) == 0 {
		return
	}

	for _, hook := range hooks {
		matches, err := m.evaluateCondition(hook.Condition, evt)
		if err != nil {
			log.Warnf("Failed to evaluate hook condition %q: %v", hook.Condition, err)
			continue
		}

		if matches {
			log.Infof("Executing hook %s (action: %s)", hook.Name, hook.Action)
			go m.executeAction(hook, evt)
		}
	}
}

func (m *Manager) evaluateCondition(condition string, evt *Event) (bool, error) {
	if condition == "" || condition == "true" {
		return true, nil
	}

	m.mu.Lock()
	program, ok := m.programs[condition]
	if !ok {
		var err error
		// Compiled without a typed environment so any payload shape works.
		program, err = expr.Compile(condition)
		if err != nil {
			m.mu.Unlock()
			return false, err
		}
		m.programs[condition] = program
	}
	m.mu.Unlock()

	payload := evt.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	env := map[string]any{
		"Event":     string(evt.Name),
		"Timestamp": evt.Timestamp,
		"Payload":   payload,
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return boolean")
	}

	return result, nil
}

func (m *Manager) executeAction(hook *Hook, evt *Event) {
	m.mu.RLock()
	handler, ok := m.actions[hook.Action]
	m.mu.RUnlock()

	if !ok {
		log.Warnf("No handler registered for action: %s", hook.Action)
		return
	}

	if err := handler(hook, evt); err != nil {
		log.Errorf("Action %s failed for hook %s: %v", hook.Action, hook.Name, err)
	}
}

// RegisterAction registers a handler for an action name, replacing any
// existing handler.
func (m *Manager) RegisterAction(action ActionName, handler ActionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[action] = handler
}

// StartWatcher starts a background fsnotify watcher that reloads hook
// definitions when files under the hook directory change.
func (m *Manager) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	if err := m.watcher.Add(m.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Infof("Hook directory changed (%s), reloading", event.Name)
					// Editors often fire several events per save.
					time.Sleep(100 * time.Millisecond)
					if err := m.Load(); err != nil {
						log.Errorf("Failed to reload hooks: %v", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("Hook watcher error: %v", err)
			case <-m.stopWatcher:
				return
			}
		}
	}()

	return nil
}

// StopWatcher stops the file watcher. Safe to call when no watcher runs.
func (m *Manager) StopWatcher() {
	if m.watcher != nil {
		select {
		case <-m.stopWatcher:
		default:
			close(m.stopWatcher)
		}
		m.watcher.Close()
	}
}

// Dir returns the hook directory path.
func (m *Manager) Dir() string {
	return m.dir
}

// Hooks returns all loaded hooks flattened across events.
func (m *Manager) Hooks() []*Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Hook, 0)
	for _, hooks := range m.hooks {
		result = append(result, hooks...)
	}
	return result
}

// HookByID returns the loaded hook with the given ID, or nil.
func (m *Manager) HookByID(id string) *Hook {
	for _, h := range m.Hooks() {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// EvaluateCondition exposes condition evaluation for tests and tooling.
func (m *Manager) EvaluateCondition(h *Hook, evt *Event) (bool, error) {
	return m.evaluateCondition(h.Condition, evt)
}

// CompileCondition checks that a condition expression compiles. Used by
// offline validation before a hook file is deployed.
func CompileCondition(condition string) error {
	if condition == "" || condition == "true" {
		return nil
	}
	_, err := expr.Compile(condition)
	return err
}
