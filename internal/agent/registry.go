// Package agent tracks live worker agents and their advertised capabilities.
//
// Descriptors are ephemeral: they exist only while an agent keeps polling and
// are evicted after the liveness TTL. Heartbeat writes are idempotent
// upserts.
package agent

import (
	"sync"
	"time"

	"github.com/walmartlabs/concord-sub001/internal/process"
)

// Descriptor is one registered agent.
type Descriptor struct {
	ID           string
	Capabilities map[string]string
	LastSeen     time.Time
}

// Assignment is a claimed instance handed to an agent.
type Assignment struct {
	Instance *process.Instance
}

// DefaultTTL is how long an agent stays matchable after its last heartbeat.
const DefaultTTL = 30 * time.Second

// DefaultMaxAgents bounds the registry so a misbehaving fleet cannot grow it
// without limit.
const DefaultMaxAgents = 1024

// workBuffer is the per-agent assignment channel capacity. The dispatcher
// reserves a slot before claiming so a successful claim always has somewhere
// to go.
const workBuffer = 4

type entry struct {
	desc Descriptor
	work chan Assignment
}

// Registry is a bounded, concurrency-safe agent map with TTL-based eviction.
type Registry struct {
	mu      sync.Mutex
	agents  map[string]*entry
	ttl     time.Duration
	max     int
	nowFunc func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL overrides the liveness TTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithMaxAgents overrides the registry capacity bound.
func WithMaxAgents(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.max = n
		}
	}
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.nowFunc = now
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		agents:  make(map[string]*entry),
		ttl:     DefaultTTL,
		max:     DefaultMaxAgents,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Heartbeat upserts an agent descriptor. It is called on every poll; the
// returned bool is false only when the registry is full and the agent is new.
func (r *Registry) Heartbeat(id string, capabilities map[string]string) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpiredLocked()

	e, ok := r.agents[id]
	if !ok {
		if len(r.agents) >= r.max {
			return false
		}
		e = &entry{work: make(chan Assignment, workBuffer)}
		r.agents[id] = e
	}
	e.desc = Descriptor{
		ID:           id,
		Capabilities: capabilities,
		LastSeen:     r.nowFunc(),
	}
	return true
}

// Match returns the id of a live agent whose capabilities are a superset of
// requirements and whose work channel has a free slot. Returns "" when no
// agent qualifies.
func (r *Registry) Match(requirements map[string]string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpiredLocked()

	for id, e := range r.agents {
		if len(e.work) == cap(e.work) {
			continue
		}
		if process.Satisfies(e.desc.Capabilities, requirements) {
			return id
		}
	}
	return ""
}

// Deliver hands a claimed instance to the agent's work channel without
// blocking. Returns false when the agent vanished or its channel filled
// between Match and Deliver; the caller must release the claim.
func (r *Registry) Deliver(agentID string, a Assignment) bool {
	r.mu.Lock()
	e, ok := r.agents[agentID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case e.work <- a:
		return true
	default:
		return false
	}
}

// Take returns a pending assignment for the agent, if any. Called from the
// agent poll endpoint after the heartbeat upsert.
func (r *Registry) Take(agentID string) (Assignment, bool) {
	r.mu.Lock()
	e, ok := r.agents[agentID]
	r.mu.Unlock()
	if !ok {
		return Assignment{}, false
	}
	select {
	case a := <-e.work:
		return a, true
	default:
		return Assignment{}, false
	}
}

// Snapshot returns the current live descriptors, for observability.
func (r *Registry) Snapshot() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpiredLocked()

	out := make([]Descriptor, 0, len(r.agents))
	for _, e := range r.agents {
		out = append(out, e.desc)
	}
	return out
}

// Len returns the number of live agents.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictExpiredLocked()
	return len(r.agents)
}

func (r *Registry) evictExpiredLocked() {
	cutoff := r.nowFunc().Add(-r.ttl)
	for id, e := range r.agents {
		if e.desc.LastSeen.Before(cutoff) {
			delete(r.agents, id)
		}
	}
}
