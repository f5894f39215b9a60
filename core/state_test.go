package core

import "testing"

func TestConversationState_AppendAndClone(t *testing.T) {
	s := NewConversationState("t1")
	s.Append(UserMessage("hi"), AssistantMessage("hello"))

	clone := s.Clone()
	if clone == s {
		t.Error("Clone should be a different pointer")
	}

	clone.Append(UserMessage("more"))
	if len(s.Messages) != 2 {
		t.Errorf("original should not see clone's append, got %d messages", len(s.Messages))
	}
	if len(clone.Messages) != 3 {
		t.Errorf("clone should have 3 messages, got %d", len(clone.Messages))
	}
}

func TestConversationState_ConversationHistoryFiltersRoles(t *testing.T) {
	s := NewConversationState("t2")
	s.Append(
		SystemMessage("system prompt"),
		UserMessage("what's 2+2?"),
		AssistantMessage("", ToolCall{ID: "c1", Name: "calculate_sum"}),
		ToolMessage("4", "c1"),
		AssistantMessage("The answer is 4."),
	)

	history := s.ConversationHistory()
	if len(history) != 2 {
		t.Fatalf("expected 2 history messages, got %d: %+v", len(history), history)
	}
	if history[0].Role != RoleUser || history[1].Role != RoleAssistant {
		t.Errorf("unexpected roles: %s, %s", history[0].Role, history[1].Role)
	}
	if history[1].Content != "The answer is 4." {
		t.Errorf("unexpected assistant content: %q", history[1].Content)
	}
}

func TestConversationState_LastMessage(t *testing.T) {
	s := NewConversationState("t3")
	if s.LastMessage().Role != "" {
		t.Error("empty state should return zero message")
	}
	s.Append(UserMessage("hi"))
	if s.LastMessage().Content != "hi" {
		t.Errorf("unexpected last message: %+v", s.LastMessage())
	}
}
