package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgefund/internal/domain"
)

type mockTool struct {
	name   string
	schema json.RawMessage
	calls  int
}

func (m *mockTool) Name() string        { return m.name }
func (m *mockTool) Description() string { return "mock" }
func (m *mockTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: m.name, Description: "mock", Parameters: m.schema}
}
func (m *mockTool) Execute(context.Context, json.RawMessage) (*domain.ToolResult, error) {
	m.calls++
	return &domain.ToolResult{Content: "ok"}, nil
}

func TestRegistryBasic(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&mockTool{name: "b"}))
	require.NoError(t, reg.Register(&mockTool{name: "a"}))

	tl, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", tl.Name())

	assert.Equal(t, []string{"b", "a"}, reg.Names())
	schemas := reg.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "b", schemas[0].Name)
	assert.Len(t, reg.List(), 2)
}

func TestRegistryGet_NotFound(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := reg.Get("missing")
	assert.True(t, errors.Is(err, domain.ErrToolNotFound))
}

func TestRegistryRegister_Duplicate(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&mockTool{name: "x"}))
	err := reg.Register(&mockTool{name: "x"})
	assert.True(t, errors.Is(err, domain.ErrDuplicate))
}

func TestRegistryRegister_BadSchema(t *testing.T) {
	reg := NewRegistry(nil)
	err := reg.Register(&mockTool{name: "bad", schema: json.RawMessage(`{"type": 12}`)})
	require.Error(t, err)
	assert.Empty(t, reg.Names())
}

func TestRegistryRegisterAll_StopsAtFirstFailure(t *testing.T) {
	reg := NewRegistry(nil)
	err := reg.RegisterAll(&mockTool{name: "a"}, &mockTool{name: "a"}, &mockTool{name: "c"})
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, reg.Names())
}

func TestRegistrySubset(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.RegisterAll(&mockTool{name: "a"}, &mockTool{name: "b"}, &mockTool{name: "c"}))

	sub, err := reg.Subset("c", "a", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, sub.Names())

	_, err = sub.Get("b")
	assert.True(t, errors.Is(err, domain.ErrToolNotFound))
}

func TestRegistrySubset_UnknownTool(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&mockTool{name: "a"}))

	_, err := reg.Subset("a", "get_everything")
	require.Error(t, err)
	assert.True(t, domain.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "get_everything")
}

func TestRegistry_WrapsWithSchemaValidation(t *testing.T) {
	inner := &mockTool{name: "strict", schema: json.RawMessage(`{
		"type": "object",
		"properties": {"n": {"type": "integer"}},
		"required": ["n"]
	}`)}
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(inner))
	tl, err := reg.Get("strict")
	require.NoError(t, err)

	res, err := tl.Execute(context.Background(), json.RawMessage(`{"n":"one"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ToolErrInvalidArguments, res.ErrorKind)
	assert.Equal(t, 0, inner.calls)

	res, err = tl.Execute(context.Background(), json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, 1, inner.calls)
}
