package memory

import (
	"context"
	"strings"

	"github.com/convoflow/convoflow/core"
)

// NoRelevantMemory is the placeholder injected into the system prompt when
// memory search fails or yields nothing. The turn proceeds either way.
const NoRelevantMemory = "No relevant memory found."

// Store is the long-term memory contract. Search failures are recovered by
// the caller (placeholder context); Add runs best-effort in the background
// and its errors are only logged.
type Store interface {
	// Search returns memory snippets relevant to the query for a user.
	Search(ctx context.Context, userID, query string) ([]core.SearchResult, error)

	// Add ingests a conversation transcript for a user. Implementations
	// decide what to extract and store.
	Add(ctx context.Context, userID string, msgs []core.Message, metadata map[string]any) error
}

// Context renders search results into the context string injected into the
// system prompt, one bulleted snippet per line. Empty results render the
// NoRelevantMemory placeholder.
func Context(results []core.SearchResult) string {
	if len(results) == 0 {
		return NoRelevantMemory
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r.Content == "" {
			continue
		}
		lines = append(lines, "* "+r.Content)
	}
	if len(lines) == 0 {
		return NoRelevantMemory
	}
	return strings.Join(lines, "\n")
}
