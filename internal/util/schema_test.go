package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParameters_Required(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
		"required": []string{"name"},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"name": "x"}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)
}

func TestValidateParameters_RequiredAsAnySlice(t *testing.T) {
	// Schemas decoded from JSON carry required as []any.
	schema := map[string]any{
		"type":     "object",
		"required": []any{"city"},
	}
	assert.Error(t, ValidateParameters(map[string]any{}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"city": "Berlin"}, schema))
}

func TestValidateParameters_TypeChecks(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count":  map[string]any{"type": "integer"},
			"ratio":  map[string]any{"type": "number"},
			"active": map[string]any{"type": "boolean"},
		},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"count": float64(3)}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"count": 3.5}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"ratio": 3.5}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"active": "yes"}, schema))
	// Fields absent from properties pass through.
	assert.NoError(t, ValidateParameters(map[string]any{"extra": struct{}{}}, schema))
}

func TestCreateSchema(t *testing.T) {
	type args struct {
		City    string  `json:"city" description:"City name"`
		Days    int     `json:"days,omitempty"`
		Verbose *bool   `json:"verbose"`
		Score   float64 `json:"score"`
		skipped string  //nolint:unused
		Ignored string  `json:"-"`
	}

	schema := CreateSchema(args{})
	props := schema["properties"].(map[string]any)

	assert.Equal(t, "string", props["city"].(map[string]any)["type"])
	assert.Equal(t, "City name", props["city"].(map[string]any)["description"])
	assert.Equal(t, "integer", props["days"].(map[string]any)["type"])
	assert.Equal(t, "boolean", props["verbose"].(map[string]any)["type"])
	assert.Equal(t, "number", props["score"].(map[string]any)["type"])
	assert.NotContains(t, props, "skipped")
	assert.NotContains(t, props, "Ignored")

	// omitempty and pointer fields are optional.
	assert.ElementsMatch(t, []string{"city", "score"}, schema["required"])
}
