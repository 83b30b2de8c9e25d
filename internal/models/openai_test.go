//go:build !integration && !e2e
// +build !integration,!e2e

package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequest_Unmarshal_KeepsUnknownFields(t *testing.T) {
	input := `{"model":"gpt-4","messages":[{"role":"user","content":"Hi"}],"temperature":0.7,"tools":[{"type":"function","function":{"name":"f"}}]}`
	var req ChatRequest
	err := json.Unmarshal([]byte(input), &req)

	require.NoError(t, err)
	assert.Equal(t, "gpt-4", req.Model)
	assert.False(t, req.Stream)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Extra, "temperature")
	assert.Contains(t, req.Extra, "tools")
}

func TestChatRequest_Unmarshal_InvalidModel(t *testing.T) {
	input := `{"model":42,"messages":[]}`
	var req ChatRequest
	err := json.Unmarshal([]byte(input), &req)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "model")
}

func TestChatRequest_Unmarshal_InvalidStream(t *testing.T) {
	input := `{"model":"m","messages":[],"stream":"yes"}`
	var req ChatRequest
	err := json.Unmarshal([]byte(input), &req)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "stream")
}

func TestChatRequest_Marshal_RoundTripsExtras(t *testing.T) {
	input := `{"model":"gpt-4","messages":[{"role":"user","content":"Hi"}],"stream":true,"temperature":0.2,"response_format":{"type":"json_object"}}`
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(input), &req))

	data, err := json.Marshal(&req)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(data))
}

func TestChatRequest_Marshal_AlwaysIncludesStream(t *testing.T) {
	req := ChatRequest{Model: "m", Messages: []ChatMessage{}}
	data, err := json.Marshal(&req)

	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "stream")
	assert.Equal(t, "false", string(decoded["stream"]))
}

func TestChatMessage_ToolCallsPreserved(t *testing.T) {
	input := `{"role":"assistant","content":null,"tool_calls":[{"id":"c1","type":"function","function":{"name":"f","arguments":"{}"}}]}`
	var msg ChatMessage
	err := json.Unmarshal([]byte(input), &msg)

	require.NoError(t, err)
	assert.Equal(t, "assistant", msg.Role)
	assert.NotEmpty(t, msg.ToolCalls)
}

func TestPromptValue_Unmarshal_String(t *testing.T) {
	var p PromptValue
	err := json.Unmarshal([]byte(`"Once upon a time"`), &p)

	require.NoError(t, err)
	assert.False(t, p.IsArray)
	assert.Equal(t, "Once upon a time", p.Text)
	assert.False(t, p.IsZero())
}

func TestPromptValue_Unmarshal_List(t *testing.T) {
	var p PromptValue
	err := json.Unmarshal([]byte(`["a","b"]`), &p)

	require.NoError(t, err)
	assert.True(t, p.IsArray)
	assert.Equal(t, []string{"a", "b"}, p.List)
}

func TestPromptValue_Marshal_PreservesFormat(t *testing.T) {
	for _, input := range []string{`"text prompt"`, `["p1","p2"]`} {
		var p PromptValue
		require.NoError(t, json.Unmarshal([]byte(input), &p))

		data, err := json.Marshal(p)
		require.NoError(t, err)
		assert.JSONEq(t, input, string(data))
	}
}

func TestNewModelList_SortedGroupNames(t *testing.T) {
	list := NewModelList([]string{"anthropic/claude-3", "gpt-4", "local/llama"})

	assert.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 3)
	for i, name := range []string{"anthropic/claude-3", "gpt-4", "local/llama"} {
		assert.Equal(t, name, list.Data[i].ID)
		assert.Equal(t, "model", list.Data[i].Object)
	}
}
