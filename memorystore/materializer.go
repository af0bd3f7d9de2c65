package memorystore

import (
	"context"
	"sync"

	"github.com/eckerlein/rippledb/merge"
)

type entityKey struct {
	entity, id string
}

// Materializer is an in-memory materializer.Materializer: one
// mutex-guarded map from (entity, id) to merge.State, mirroring the
// teacher's MemoryStore scoped-map shape.
type Materializer struct {
	mu     sync.RWMutex
	states map[entityKey]merge.State
}

// NewMaterializer creates an empty in-memory Materializer.
func NewMaterializer() *Materializer {
	return &Materializer{states: make(map[entityKey]merge.State)}
}

func (m *Materializer) Load(_ context.Context, entity, id string) (*merge.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.states[entityKey{entity, id}]
	if !ok {
		return nil, nil
	}
	cp := s.Clone()
	return &cp, nil
}

func (m *Materializer) Save(_ context.Context, entity, id string, state merge.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[entityKey{entity, id}] = state.Clone()
	return nil
}

func (m *Materializer) Remove(_ context.Context, entity, id string, state merge.State) error {
	return m.Save(context.Background(), entity, id, state)
}

// List returns every non-deleted state for entity, for predicate
// queries against the materialized domain projection (spec §2 "Data
// flow (state read)").
func (m *Materializer) List(entity string) map[string]merge.State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]merge.State)
	for k, v := range m.states {
		if k.entity != entity || v.Deleted {
			continue
		}
		out[k.id] = v.Clone()
	}
	return out
}

func (m *Materializer) snapshot() map[entityKey]merge.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[entityKey]merge.State, len(m.states))
	for k, v := range m.states {
		cp[k] = v
	}
	return cp
}

func (m *Materializer) restore(states map[entityKey]merge.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = states
}
