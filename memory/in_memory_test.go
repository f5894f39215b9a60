package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/convoflow/convoflow/core"
)

func TestInMemoryStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	err := s.Add(ctx, "u1", []core.Message{
		core.UserMessage("I live in Berlin"),
		core.AssistantMessage("Noted, Berlin it is."),
		core.ToolMessage("ignored", "c1"),
	}, map[string]any{"session_id": "t1"})
	if err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, "u1", "berlin")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Metadata["session_id"] != "t1" {
		t.Errorf("metadata not preserved: %+v", results[0].Metadata)
	}
}

func TestInMemoryStore_SearchIsPerUser(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_ = s.Add(ctx, "u1", []core.Message{core.UserMessage("I like sailing")}, nil)

	results, err := s.Search(ctx, "u2", "sailing")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no cross-user results, got %d", len(results))
	}
}

func TestContext_RendersBulletedLines(t *testing.T) {
	got := Context([]core.SearchResult{
		{Content: "likes go"},
		{Content: "lives in Berlin"},
	})
	want := "* likes go\n* lives in Berlin"
	if got != want {
		t.Errorf("Context() = %q, want %q", got, want)
	}
}

func TestContext_EmptyYieldsPlaceholder(t *testing.T) {
	if got := Context(nil); got != NoRelevantMemory {
		t.Errorf("Context(nil) = %q", got)
	}
	if got := Context([]core.SearchResult{{Content: ""}}); got != NoRelevantMemory {
		t.Errorf("Context(blank results) = %q", got)
	}
	if !strings.Contains(NoRelevantMemory, "No relevant memory") {
		t.Error("placeholder text changed unexpectedly")
	}
}
