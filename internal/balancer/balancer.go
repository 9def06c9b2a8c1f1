// Package balancer spreads classification calls across the configured LLM
// providers and shields each one with a circuit breaker. It implements the
// routing completer surface, so the classifier node cannot tell a balanced
// pool from a single provider.
package balancer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/agenthive/agenthive/internal/metrics"
	"github.com/agenthive/agenthive/internal/routing"
)

// ErrNoProviderAvailable indicates no provider can take the call: either
// none are configured or every circuit breaker is open.
var ErrNoProviderAvailable = errors.New("no provider available")

// Provider is the upstream surface the balancer spreads calls over.
type Provider interface {
	Identifier() string
	Complete(ctx context.Context, req routing.CompletionRequest) (routing.CompletionResponse, error)
}

// Config carries the breaker tunables shared by every provider slot.
type Config struct {
	// FailureThreshold is the consecutive-failure count that trips a
	// breaker open. Zero selects the default of 5.
	FailureThreshold int
	// Cooldown is how long a tripped breaker rejects calls before
	// admitting a probe. Zero selects the default of 30s.
	Cooldown time.Duration
}

type slot struct {
	provider Provider
	breaker  *Breaker
	active   atomic.Int64
}

// Balancer routes each call to the healthy provider with the fewest calls
// in flight, rotating a cursor to break ties. Safe for concurrent use.
type Balancer struct {
	slots  []*slot
	cursor atomic.Uint64

	metrics      metrics.Sink
	onTransition func(provider string, from, to State)
	onFailure    func(provider string, err error)
}

// NewBalancer builds a balancer over the given providers. Nil entries are
// dropped; an empty pool is legal and fails every call with
// ErrNoProviderAvailable.
func NewBalancer(providers []Provider, cfg Config) *Balancer {
	b := &Balancer{metrics: metrics.NewNop()}
	for _, p := range providers {
		if p == nil {
			continue
		}
		s := &slot{
			provider: p,
			breaker:  NewBreaker(cfg.FailureThreshold, cfg.Cooldown),
		}
		id := p.Identifier()
		s.breaker.SetTransitionFunc(func(from, to State) {
			b.metrics.RecordCircuitTransition(id, to.String())
			log.WithFields(log.Fields{
				"provider": id,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("Circuit state changed")
			if fn := b.onTransition; fn != nil {
				fn(id, from, to)
			}
		})
		b.slots = append(b.slots, s)
	}
	return b
}

// SetMetricsSink wires provider call and circuit transition counters.
// Call before serving traffic.
func (b *Balancer) SetMetricsSink(sink metrics.Sink) {
	if sink != nil {
		b.metrics = sink
	}
}

// SetTransitionFunc registers a callback for circuit state changes,
// typically the event bus publisher. Call before serving traffic.
func (b *Balancer) SetTransitionFunc(fn func(provider string, from, to State)) {
	b.onTransition = fn
}

// SetFailureFunc registers a callback for failed provider calls. Call
// before serving traffic.
func (b *Balancer) SetFailureFunc(fn func(provider string, err error)) {
	b.onFailure = fn
}

// Providers returns the pool's identifiers in registration order.
func (b *Balancer) Providers() []string {
	ids := make([]string, len(b.slots))
	for i, s := range b.slots {
		ids[i] = s.provider.Identifier()
	}
	return ids
}

// States reports every breaker's current position, keyed by provider.
func (b *Balancer) States() map[string]string {
	states := make(map[string]string, len(b.slots))
	for _, s := range b.slots {
		states[s.provider.Identifier()] = s.breaker.State().String()
	}
	return states
}

// Complete forwards the request to the selected provider and feeds the
// outcome back into its breaker.
func (b *Balancer) Complete(ctx context.Context, req routing.CompletionRequest) (routing.CompletionResponse, error) {
	s, err := b.pick()
	if err != nil {
		return routing.CompletionResponse{}, err
	}
	id := s.provider.Identifier()

	s.active.Add(1)
	start := time.Now()
	resp, err := s.provider.Complete(ctx, req)
	latency := time.Since(start)
	s.active.Add(-1)

	if err != nil {
		s.breaker.OnFailure()
		b.metrics.RecordProviderCall(id, false, latency)
		if fn := b.onFailure; fn != nil {
			fn(id, err)
		}
		log.WithFields(log.Fields{
			"provider":   id,
			"latency_ms": latency.Milliseconds(),
		}).Warnf("Provider call failed: %v", err)
		return routing.CompletionResponse{}, fmt.Errorf("provider %s: %w", id, err)
	}

	s.breaker.OnSuccess()
	b.metrics.RecordProviderCall(id, true, latency)
	if resp.Provider == "" {
		resp.Provider = id
	}
	return resp, nil
}

// pick selects the next provider: closed breakers by fewest active calls
// with rotating tie-break, then any breaker willing to admit a probe.
func (b *Balancer) pick() (*slot, error) {
	n := len(b.slots)
	if n == 0 {
		return nil, ErrNoProviderAvailable
	}
	offset := int((b.cursor.Add(1) - 1) % uint64(n))

	var best *slot
	var bestActive int64
	for i := 0; i < n; i++ {
		s := b.slots[(offset+i)%n]
		if !s.breaker.Ready() {
			continue
		}
		active := s.active.Load()
		if best == nil || active < bestActive {
			best, bestActive = s, active
		}
	}
	if best != nil {
		return best, nil
	}

	for i := 0; i < n; i++ {
		s := b.slots[(offset+i)%n]
		if s.breaker.TryProbe() {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: all %d circuit breakers open", ErrNoProviderAvailable, n)
}

var _ routing.Completer = (*Balancer)(nil)
