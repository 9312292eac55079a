package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/dashscope-starter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func echoTool(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

func newManager(t *testing.T) *DefaultToolCallingManager {
	t.Helper()
	reg := NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register("echo", echoTool, ToolMetadata{
		Schema: types.ToolSchema{Description: "echo args", Parameters: json.RawMessage(`{"type":"object"}`)},
	}))
	require.NoError(t, reg.Register("fail", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("boom")
	}, ToolMetadata{}))
	require.NoError(t, reg.Register("slow", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, ToolMetadata{Timeout: 20 * time.Millisecond}))
	return NewDefaultToolCallingManager(reg, zap.NewNop())
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("echo", echoTool, ToolMetadata{}))

	assert.Error(t, reg.Register("echo", echoTool, ToolMetadata{}), "duplicate name")
	assert.Error(t, reg.Register("other", echoTool, ToolMetadata{Schema: types.ToolSchema{Name: "mismatch"}}))

	_, meta, err := reg.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", meta.Schema.Name)
	assert.Equal(t, 30*time.Second, meta.Timeout)

	require.NoError(t, reg.Unregister("echo"))
	assert.False(t, reg.Has("echo"))
	assert.Error(t, reg.Unregister("echo"))
}

func TestManager_ResolveToolDefinitions(t *testing.T) {
	m := newManager(t)

	schemas, err := m.ResolveToolDefinitions([]string{"echo"})
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "echo", schemas[0].Name)
	assert.Equal(t, "echo args", schemas[0].Description)

	_, err = m.ResolveToolDefinitions([]string{"echo", "missing"})
	assert.Error(t, err)
}

func TestManager_ExecuteToolCalls(t *testing.T) {
	m := newManager(t)

	results := m.ExecuteToolCalls(context.Background(), []types.ToolCall{
		{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"a":1}`)},
		{ID: "2", Name: "fail"},
		{ID: "3", Name: "missing"},
		{ID: "4", Name: "echo", Arguments: json.RawMessage(`{bad`)},
		{ID: "5", Name: "slow"},
	})
	require.Len(t, results, 5)

	assert.False(t, results[0].IsError())
	assert.JSONEq(t, `{"a":1}`, string(results[0].Result))
	assert.Equal(t, "boom", results[1].Error)
	assert.Contains(t, results[2].Error, "not found")
	assert.Contains(t, results[3].Error, "invalid arguments")
	assert.Contains(t, results[4].Error, "timeout")

	for i, r := range results {
		assert.Equal(t, string(rune('1'+i)), r.ToolCallID)
	}
}

func TestManager_RateLimit(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("limited", echoTool, ToolMetadata{
		RateLimit: &RateLimitConfig{MaxCalls: 1, Window: time.Hour},
	}))
	m := NewDefaultToolCallingManager(reg, nil)

	first := m.ExecuteToolCalls(context.Background(), []types.ToolCall{{ID: "a", Name: "limited"}})
	second := m.ExecuteToolCalls(context.Background(), []types.ToolCall{{ID: "b", Name: "limited"}})

	assert.False(t, first[0].IsError())
	assert.Equal(t, "rate limit exceeded", second[0].Error)
}
