package core

import "time"

// ConversationState is the durable per-thread state owned by a checkpoint
// store. The engine holds only a transient working copy during a turn;
// message order is append-only and never reordered.
//
// No concurrency guard protects two simultaneous turns against the same
// thread id: the store applies last-write-wins. Callers that need stricter
// semantics must serialize turns per thread themselves.
type ConversationState struct {
	ThreadID      string    `json:"thread_id"`
	Messages      []Message `json:"messages"`
	MemoryContext string    `json:"memory_context,omitempty"`
	Created       time.Time `json:"created"`
	Updated       time.Time `json:"updated"`
}

// NewConversationState creates an empty state for a thread id.
func NewConversationState(threadID string) *ConversationState {
	now := time.Now()
	return &ConversationState{ThreadID: threadID, Messages: []Message{}, Created: now, Updated: now}
}

// Append adds messages to the conversation updating the Updated timestamp.
func (s *ConversationState) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
	s.Updated = time.Now()
}

// LastMessage returns the most recent message, or a zero Message when empty.
func (s *ConversationState) LastMessage() Message {
	if len(s.Messages) == 0 {
		return Message{}
	}
	return s.Messages[len(s.Messages)-1]
}

// Clone returns a deep copy safe for independent mutation. Stores hand out
// clones so a turn in flight never aliases persisted state.
func (s *ConversationState) Clone() *ConversationState {
	clone := &ConversationState{
		ThreadID:      s.ThreadID,
		Messages:      make([]Message, len(s.Messages)),
		MemoryContext: s.MemoryContext,
		Created:       s.Created,
		Updated:       s.Updated,
	}
	copy(clone.Messages, s.Messages)
	return clone
}

// ConversationHistory returns the user/assistant view of the conversation,
// filtering out system and tool messages.
func (s *ConversationState) ConversationHistory() []Message {
	return FilterConversation(s.Messages)
}
