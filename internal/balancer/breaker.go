package balancer

import (
	"sync"
	"time"
)

// State is the circuit breaker position for one provider.
type State int

const (
	// StateClosed admits every call.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a single probe call.
	StateHalfOpen
)

// String returns the wire form used in metrics, events, and the stats API.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a per-provider circuit breaker. Consecutive failures trip it
// open; after the cooldown it admits one probe, and that probe's outcome
// decides between closing again and another cooldown round.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probing   bool
	threshold int
	cooldown  time.Duration

	// onTransition is called outside the lock whenever the state changes.
	onTransition func(from, to State)

	// now is replaceable for tests.
	now func() time.Time
}

// NewBreaker builds a closed breaker that opens after threshold consecutive
// failures and stays open for cooldown before probing.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// SetTransitionFunc registers a callback for state changes.
func (b *Breaker) SetTransitionFunc(fn func(from, to State)) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

// State returns the current position, accounting for an elapsed cooldown.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Ready reports whether the breaker admits regular calls.
func (b *Breaker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateClosed
}

// TryProbe attempts to reserve the single half-open probe slot. It returns
// true at most once per cooldown round; the caller must report the probe's
// outcome via OnSuccess or OnFailure.
func (b *Breaker) TryProbe() bool {
	b.mu.Lock()
	var notify func(from, to State)
	var from State

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return false
		}
		from, b.state = b.state, StateHalfOpen
		b.probing = true
		notify = b.onTransition
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return false
		}
		b.probing = true
	default:
		b.mu.Unlock()
		return false
	}
	b.mu.Unlock()

	if notify != nil {
		notify(from, StateHalfOpen)
	}
	return true
}

// OnSuccess records a successful call, closing the breaker from half-open.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	var notify func(from, to State)
	var from State

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		from, b.state = b.state, StateClosed
		b.failures = 0
		b.probing = false
		notify = b.onTransition
	}
	b.mu.Unlock()

	if notify != nil {
		notify(from, StateClosed)
	}
}

// OnFailure records a failed call. From closed it counts toward the trip
// threshold; from half-open the failed probe re-opens for another cooldown.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	var notify func(from, to State)
	var from State

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			from, b.state = b.state, StateOpen
			b.openedAt = b.now()
			notify = b.onTransition
		}
	case StateHalfOpen:
		from, b.state = b.state, StateOpen
		b.openedAt = b.now()
		b.probing = false
		notify = b.onTransition
	case StateOpen:
		// A call admitted before the trip finished losing; already open.
	}
	b.mu.Unlock()

	if notify != nil {
		notify(from, StateOpen)
	}
}
