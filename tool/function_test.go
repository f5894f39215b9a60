package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumTool() *FunctionTool {
	return NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(ctx context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("%v", args["a"].(float64)+args["b"].(float64)), nil
		},
	)
}

func TestFunctionTool_Call(t *testing.T) {
	result, err := sumTool().Call(context.Background(), map[string]any{"a": 1.5, "b": 2.5})
	require.NoError(t, err)
	assert.Equal(t, "4", result)
}

func TestFunctionTool_MissingRequiredArg(t *testing.T) {
	_, err := sumTool().Call(context.Background(), map[string]any{"a": 1.0})
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_ExecutionErrorWrapped(t *testing.T) {
	failing := NewFunctionTool("boom", "always fails", map[string]any{"type": "object"},
		func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("kaput")
		})

	_, err := failing.Call(context.Background(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Contains(t, toolErr.Message, "kaput")
}

func TestFunctionTool_CustomToolErrorPassesThrough(t *testing.T) {
	failing := NewFunctionTool("quota", "custom error", map[string]any{"type": "object"},
		func(ctx context.Context, args map[string]any) (string, error) {
			return "", NewToolError("quota", "limit reached", "QUOTA_EXCEEDED")
		})

	_, err := failing.Call(context.Background(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "QUOTA_EXCEEDED", toolErr.Code)
}

func TestFunctionToolFromStruct_SchemaDerivation(t *testing.T) {
	type args struct {
		City  string `json:"city" description:"City name"`
		Limit int    `json:"limit,omitempty"`
	}
	weather := NewFunctionToolFromStruct("get_weather", "Weather lookup", args{},
		func(ctx context.Context, a map[string]any) (string, error) { return "sunny", nil })

	schema := weather.Parameters()
	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "limit")
	assert.Equal(t, []string{"city"}, schema["required"])

	// city is required
	_, err := weather.Call(context.Background(), map[string]any{})
	require.Error(t, err)
}

func TestRegistry_OrderAndLookup(t *testing.T) {
	r := NewRegistry(sumTool())
	r.Register(NewFunctionTool("second", "another", map[string]any{"type": "object"},
		func(ctx context.Context, args map[string]any) (string, error) { return "", nil }))

	_, ok := r.Get("calculate_sum")
	assert.True(t, ok)
	_, ok = r.Get("missing")
	assert.False(t, ok)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "calculate_sum", all[0].Name())
	assert.Equal(t, "second", all[1].Name())
}
