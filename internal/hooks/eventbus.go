package hooks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// queueCapacity bounds the async event backlog before events are dropped.
const queueCapacity = 1000

// Subscription is a handle for a registered subscriber.
type Subscription struct {
	ID          string
	Event       EventName
	Callback    func(*Event)
	Filter      func(*Event) bool
	Unsubscribe func()
}

// Bus distributes runtime events to subscribers. Publishing is decoupled
// from hook execution so the routing hot path never blocks on a slow
// subscriber.
type Bus struct {
	subscribers  map[EventName][]*Subscription
	mu           sync.RWMutex
	queue        chan *Event
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	shutdown     bool
}

// NewBus creates an event bus and starts its async delivery loop.
func NewBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		subscribers: make(map[EventName][]*Subscription),
		queue:       make(chan *Event, queueCapacity),
		ctx:         ctx,
		cancel:      cancel,
	}

	go bus.processQueue()

	return bus
}

// Subscribe registers a callback for a specific event name.
func (b *Bus) Subscribe(event EventName, callback func(*Event)) *Subscription {
	return b.SubscribeWithFilter(event, callback, nil)
}

// SubscribeWithFilter registers a callback with an optional filter. The
// callback runs only for events the filter accepts.
func (b *Bus) SubscribeWithFilter(event EventName, callback func(*Event), filter func(*Event) bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ID:       uuid.NewString(),
		Event:    event,
		Callback: callback,
		Filter:   filter,
	}

	sub.Unsubscribe = func() {
		b.unsubscribe(sub)
	}

	b.subscribers[event] = append(b.subscribers[event], sub)
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.Event]
	for i, s := range subs {
		if s.ID == sub.ID {
			b.subscribers[sub.Event] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Publish delivers an event to all subscribers synchronously. A panicking
// subscriber is isolated so the remaining subscribers still run.
func (b *Bus) Publish(evt *Event) {
	b.mu.RLock()
	subs := b.subscribers[evt.Name]
	// Copy slice to avoid holding the lock during callbacks.
	active := make([]*Subscription, len(subs))
	copy(active, subs)
	b.mu.RUnlock()

	for _, sub := range active {
		if sub.Filter == nil || sub.Filter(evt) {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Errorf("Panic in subscriber for event %s: %v", evt.Name, r)
					}
				}()
				sub.Callback(evt)
			}()
		}
	}
}

// PublishAsync queues an event for background delivery. The event is
// dropped with a warning when the queue is full or the bus is shut down.
func (b *Bus) PublishAsync(evt *Event) {
	b.mu.RLock()
	stopped := b.shutdown
	b.mu.RUnlock()

	if stopped {
		return
	}

	select {
	case <-b.ctx.Done():
		return
	case b.queue <- evt:
	default:
		log.Warnf("Event queue full, dropping event: %s", evt.Name)
	}
}

func (b *Bus) processQueue() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case evt, ok := <-b.queue:
			if !ok {
				return
			}
			if evt != nil {
				b.Publish(evt)
			}
		}
	}
}

// Shutdown stops background delivery. Safe to call more than once.
func (b *Bus) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.mu.Lock()
		b.shutdown = true
		b.mu.Unlock()

		b.cancel()
		close(b.queue)
	})
}
