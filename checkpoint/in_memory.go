package checkpoint

import (
	"context"
	"sync"

	"github.com/convoflow/convoflow/core"
)

// InMemoryStore is a volatile Store implementation keeping state in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Each returned state is cloned to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*core.ConversationState
}

// NewInMemoryStore constructs an empty in-memory checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{threads: make(map[string]*core.ConversationState)}
}

// Load returns a clone of the existing state or lazily creates a new one.
func (s *InMemoryStore) Load(_ context.Context, threadID string) (*core.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.threads[threadID]
	if !ok {
		state = core.NewConversationState(threadID)
		s.threads[threadID] = state
	}
	return state.Clone(), nil
}

// Append adds the turn's messages to the persisted state.
func (s *InMemoryStore) Append(_ context.Context, threadID string, msgs []core.Message, memoryContext string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.threads[threadID]
	if !ok {
		state = core.NewConversationState(threadID)
		s.threads[threadID] = state
	}
	state.Append(msgs...)
	if memoryContext != "" {
		state.MemoryContext = memoryContext
	}
	return nil
}

// DeleteAll removes the thread's state entirely.
func (s *InMemoryStore) DeleteAll(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}
