package chat

import (
	"context"
	"sync"
)

// HydrateFunc loads the persisted turn history for a conversation. It runs
// at most once per conversation, when its session is first created.
type HydrateFunc func(ctx context.Context) ([]Turn, error)

// Manager hands out one Orchestrator per conversation, hydrating it from
// persisted history on first use. Sessions live until evicted.
type Manager struct {
	gen Generator

	mu       sync.Mutex
	sessions map[string]*Orchestrator
}

func NewManager(gen Generator) *Manager {
	return &Manager{gen: gen, sessions: make(map[string]*Orchestrator)}
}

// Session returns the orchestrator for conversationID, creating and seeding
// it via hydrate when no live session exists. hydrate may be nil for
// conversations with no persisted history.
func (m *Manager) Session(ctx context.Context, conversationID string, hydrate HydrateFunc) (*Orchestrator, error) {
	m.mu.Lock()
	if o, ok := m.sessions[conversationID]; ok {
		m.mu.Unlock()
		return o, nil
	}
	m.mu.Unlock()

	var turns []Turn
	if hydrate != nil {
		var err error
		turns, err = hydrate(ctx)
		if err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have hydrated concurrently; first one wins.
	if o, ok := m.sessions[conversationID]; ok {
		return o, nil
	}
	o := NewOrchestrator(m.gen)
	if err := o.Seed(turns); err != nil {
		return nil, err
	}
	m.sessions[conversationID] = o
	return o, nil
}

// Evict drops the live session for conversationID, if any. Called when a
// conversation is deleted or its history is rewritten out of band.
func (m *Manager) Evict(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, conversationID)
}
