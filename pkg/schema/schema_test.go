package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/sagaflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	for _, name := range []string{"string", "int", "float", "bool", "map", "any", "[string]", "[[int]]"} {
		typ, err := schema.ParseType(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, typ.Name())
	}
	_, err := schema.ParseType("decimal")
	assert.Error(t, err)
	_, err = schema.ParseType("[decimal]")
	assert.Error(t, err)
}

func TestSchema_Validate(t *testing.T) {
	s, err := schema.Parse(map[string]string{
		"order_id": "string",
		"amount":   "int",
		"items":    "[string]",
		"note":     "string?",
	})
	require.NoError(t, err)

	t.Run("valid with JSON numbers", func(t *testing.T) {
		var data map[string]any
		require.NoError(t, json.Unmarshal([]byte(`{"order_id":"o-1","amount":42,"items":["a","b"],"extra":true}`), &data))
		assert.NoError(t, s.Validate(data))
	})

	t.Run("reports every failing key", func(t *testing.T) {
		err := s.Validate(map[string]any{"amount": 4.5, "items": []any{"a", 1}, "note": 3})

		var fe *schema.FieldError
		require.ErrorAs(t, err, &fe)
		assert.Contains(t, err.Error(), `context key "amount": expected int`)
		assert.Contains(t, err.Error(), `context key "items": element 1: expected string`)
		assert.Contains(t, err.Error(), `context key "note": expected string`)
		assert.Contains(t, err.Error(), `context key "order_id": required`)
	})

	t.Run("optional keys may be absent", func(t *testing.T) {
		assert.NoError(t, s.Validate(map[string]any{"order_id": "o", "amount": 1, "items": []string{}}))
	})
}

func TestParse_Errors(t *testing.T) {
	_, err := schema.Parse(map[string]string{"x": "uuid"})
	assert.ErrorContains(t, err, "context key x")

	s, err := schema.Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, s.Validate(nil))
}

func TestSchema_JSON(t *testing.T) {
	s, err := schema.Parse(map[string]string{"amount": "int", "note": "string?"})
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"int","note":"string?"}`, string(data))

	var back schema.Schema
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s.Names(), back.Names())
}
