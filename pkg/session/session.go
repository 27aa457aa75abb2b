// Package session provides the durable key/value context that carries
// results across turns. The executor reads a session's context once at run
// start and writes the updated context once at run end; no step touches the
// store directly.
package session

import (
	"context"
	"sync"
)

// Store is the persistence collaborator. Implementations must return
// independent copies: mutating a loaded map must never leak back into the
// store.
type Store interface {
	Load(ctx context.Context, sessionID string) (map[string]any, error)
	Save(ctx context.Context, sessionID string, values map[string]any) error
}

// MemoryStore is an in-process Store for tests and single-turn hosts.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]any
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]map[string]any)}
}

// Load returns a copy of the session's context. Unknown sessions yield an
// empty context, not an error: a first turn has nothing stored yet.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneValues(s.sessions[sessionID]), nil
}

// Save replaces the session's context with a copy of values.
func (s *MemoryStore) Save(_ context.Context, sessionID string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = cloneValues(values)
	return nil
}

func cloneValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
