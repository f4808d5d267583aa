// Package network tracks Ready agents and maps queries onto them: an
// in-memory registry, a two-stage router and a sequential pipeline runner.
package network

import (
	"sync"

	"agentnet/internal/domain"
)

type record struct {
	descriptor domain.AgentDescriptor
	seq        int
}

// Registry is the in-memory agent table. Agents are registered when they
// become Ready and pruned on Stop or Failed; readers get snapshots and never
// hold the lock across a network call.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*record
	nextSeq int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*record)}
}

// Register adds or updates an agent. Re-registering an id keeps its original
// position in the registration order, so routing tie-breaks stay stable
// across an agent restart.
func (r *Registry) Register(desc domain.AgentDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.agents[desc.ID]; ok {
		existing.descriptor = desc
		return
	}
	r.agents[desc.ID] = &record{descriptor: desc, seq: r.nextSeq}
	r.nextSeq++
}

// Remove prunes an agent from the registry.
func (r *Registry) Remove(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
}

// Get returns the descriptor for agentID.
func (r *Registry) Get(agentID string) (domain.AgentDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return domain.AgentDescriptor{}, false
	}
	return rec.descriptor, true
}

// Snapshot returns all descriptors in registration order.
func (r *Registry) Snapshot() []domain.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AgentDescriptor, 0, len(r.agents))
	for _, rec := range r.sorted() {
		out = append(out, rec.descriptor)
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// sorted returns records in registration order. Caller holds the lock.
func (r *Registry) sorted() []*record {
	out := make([]*record, 0, len(r.agents))
	for _, rec := range r.agents {
		out = append(out, rec)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].seq > out[j].seq; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
