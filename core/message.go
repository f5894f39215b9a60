package core

// Conversation roles. Plain strings (not a dedicated type) so messages
// round-trip through JSON and provider SDKs without conversion shims.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a structured request from the model to invoke an external
// capability by name. Args is the decoded argument payload; adapters are
// responsible for parsing whatever wire shape their SDK uses.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is one entry of a conversation. Messages are immutable once
// appended to a ConversationState: a turn only ever appends.
//
// ToolCalls is populated only on assistant messages that requested tool use.
// ToolCallID is populated only on tool messages and correlates the result
// with the originating ToolCall.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage builds a system role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant role message with optional tool calls.
func AssistantMessage(content string, toolCalls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolMessage builds a tool result message correlated to a tool call id.
func ToolMessage(content, toolCallID string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// HasToolCalls reports whether the message carries pending tool requests.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// FilterConversation returns only the user and assistant messages with
// non-empty content, in order. This is the shape exposed to API consumers;
// system and tool messages are engine internals.
func FilterConversation(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if (m.Role == RoleUser || m.Role == RoleAssistant) && m.Content != "" {
			out = append(out, Message{Role: m.Role, Content: m.Content})
		}
	}
	return out
}
