package anthropic

import (
	"testing"

	"github.com/convoflow/convoflow/core"
	"github.com/convoflow/convoflow/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParams_ToolSchemaCarriesRequired(t *testing.T) {
	m := NewModel(model.Config{Name: "claude-sonnet-4-20250514"})

	req := model.Request{
		Tools: []model.ToolDefinition{{
			Name:        "get_weather",
			Description: "Weather lookup",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{"type": "string"},
					"unit": map[string]any{"type": "string"},
				},
				"required": []string{"city"},
			},
		}},
	}

	params := m.buildParams(req)
	require.Len(t, params.Tools, 1)
	schema := params.Tools[0].OfTool.InputSchema
	assert.NotNil(t, schema.Properties)
	assert.Equal(t, []string{"city"}, schema.Required)
}

func TestBuildInputSchema_RequiredShapes(t *testing.T) {
	// Schemas round-tripped through JSON carry required as []any.
	schema := buildInputSchema(map[string]any{
		"properties": map[string]any{"a": map[string]any{"type": "number"}},
		"required":   []any{"a", 42},
	})
	assert.Equal(t, []string{"a"}, schema.Required)

	schema = buildInputSchema(nil)
	assert.Nil(t, schema.Properties)
	assert.Empty(t, schema.Required)
}

func TestBuildMessages_ToolResultsBecomeUserBlocks(t *testing.T) {
	m := NewModel(model.Config{Name: "claude-sonnet-4-20250514"})
	msgs := m.buildMessages([]core.Message{
		core.UserMessage("what's the weather?"),
		core.AssistantMessage("", core.ToolCall{ID: "toolu_1", Name: "get_weather", Args: map[string]any{"city": "Berlin"}}),
		core.ToolMessage("sunny", "toolu_1"),
		core.SystemMessage("ignored here"),
	})
	// user + assistant(tool use) + user(tool result); system is merged into
	// the system parameter, not the message list.
	assert.Len(t, msgs, 3)
}
