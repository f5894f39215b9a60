package checkpoint

import (
	"context"

	"github.com/convoflow/convoflow/core"
)

// Store persists per-thread conversation state.
type Store interface {
	// Load returns the state for a thread id, lazily creating an empty
	// state on first use. The returned state is a private copy; mutating it
	// does not affect persisted data until Append.
	Load(ctx context.Context, threadID string) (*core.ConversationState, error)

	// Append durably appends the messages produced by one turn and records
	// the memory context active during it.
	Append(ctx context.Context, threadID string, msgs []core.Message, memoryContext string) error

	// DeleteAll removes every persisted row for the thread id. Backends
	// spanning multiple tables delete them in a fixed order and abort on
	// the first failure, so a partial deletion is possible.
	DeleteAll(ctx context.Context, threadID string) error
}

// NopStore discards all writes and always loads empty state. Used when a
// lenient deployment profile continues without checkpointing after the
// backend failed to initialize.
type NopStore struct{}

// Load returns a fresh empty state.
func (NopStore) Load(_ context.Context, threadID string) (*core.ConversationState, error) {
	return core.NewConversationState(threadID), nil
}

// Append discards the turn.
func (NopStore) Append(context.Context, string, []core.Message, string) error { return nil }

// DeleteAll is a no-op.
func (NopStore) DeleteAll(context.Context, string) error { return nil }
