package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/convoflow/convoflow/core"
	"github.com/google/uuid"
)

// storedMemory is the internal representation persisted by InMemoryStore.
type storedMemory struct {
	id       string
	content  string
	metadata map[string]any
}

// InMemoryStore is a naive process-local Store. Search is a linear scan with
// case-insensitive substring matching assigning a constant score of 1.0 to
// every hit. Add ingests each non-empty user/assistant message as one
// memory. Concurrency: protected by RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	storage map[string][]storedMemory // userID -> stored memories
	limit   int
}

// NewInMemoryStore creates a new in-memory memory store. limit caps the
// number of search results returned (0 means 5).
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{storage: make(map[string][]storedMemory), limit: 5}
}

// Search performs a substring match over stored memories for a user.
func (m *InMemoryStore) Search(_ context.Context, userID, query string) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	memories := m.storage[userID]
	results := make([]core.SearchResult, 0, m.limit)
	loweredQuery := strings.ToLower(query)
	for _, stored := range memories {
		if len(results) >= m.limit {
			break
		}
		if query == "" || strings.Contains(strings.ToLower(stored.content), loweredQuery) || anyWordMatch(stored.content, loweredQuery) {
			md := make(map[string]any, len(stored.metadata))
			for k, v := range stored.metadata {
				md[k] = v
			}
			results = append(results, core.SearchResult{ID: stored.id, Content: stored.content, Score: 1.0, Metadata: md})
		}
	}
	return results, nil
}

// anyWordMatch reports whether any word of the query appears in the content.
// Keeps retrieval useful for multi-word queries where the full phrase never
// recurs verbatim.
func anyWordMatch(content, loweredQuery string) bool {
	loweredContent := strings.ToLower(content)
	for _, word := range strings.Fields(loweredQuery) {
		if len(word) > 3 && strings.Contains(loweredContent, word) {
			return true
		}
	}
	return false
}

// Add stores each non-empty user/assistant message as one memory entry.
func (m *InMemoryStore) Add(_ context.Context, userID string, msgs []core.Message, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range core.FilterConversation(msgs) {
		m.storage[userID] = append(m.storage[userID], storedMemory{
			id:       uuid.NewString(),
			content:  msg.Content,
			metadata: metadata,
		})
	}
	return nil
}
