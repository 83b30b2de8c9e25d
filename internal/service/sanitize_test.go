//go:build !integration && !e2e
// +build !integration,!e2e

package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripThink(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no block", "plain answer", "plain answer"},
		{"single block", "<think>internal reasoning</think>The answer is 4.", "The answer is 4."},
		{"multiline block", "<think>line one\nline two</think>\n\nResult", "Result"},
		{"multiple blocks", "<think>a</think>first<think>b</think> second", "first second"},
		{"unclosed block survives", "<think>never closed... answer", "<think>never closed... answer"},
		{"only a block", "<think>everything</think>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripThink(tt.content))
		})
	}
}

func TestFilterChunkContentKeepsWhitespace(t *testing.T) {
	// Streaming deltas must keep their leading/trailing spaces so tokens
	// concatenate correctly on the client.
	assert.Equal(t, " world", FilterChunkContent(" world"))
	assert.Equal(t, " after ", FilterChunkContent("<think>x</think> after "))
}

func TestSanitizeChatResponse(t *testing.T) {
	body := []byte(`{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4o",
		"prompt_logprobs": null,
		"vendor_metadata": {"trace": "xyz"},
		"choices": [{
			"index": 0,
			"finish_reason": "stop",
			"message": {
				"role": "assistant",
				"content": "<think>let me think</think>Paris.",
				"reasoning_content": "let me think"
			}
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
	}`)

	cleaned := SanitizeChatResponse(body)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(cleaned, &payload))
	assert.Contains(t, payload, "id")
	assert.Contains(t, payload, "usage")
	assert.NotContains(t, payload, "prompt_logprobs")
	assert.NotContains(t, payload, "vendor_metadata")

	var choices []struct {
		Index        int             `json:"index"`
		FinishReason string          `json:"finish_reason"`
		Message      json.RawMessage `json:"message"`
	}
	require.NoError(t, json.Unmarshal(payload["choices"], &choices))
	require.Len(t, choices, 1)
	// Non-message choice fields pass through untouched.
	assert.Equal(t, "stop", choices[0].FinishReason)

	var message map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(choices[0].Message, &message))
	assert.NotContains(t, message, "reasoning_content")
	var content string
	require.NoError(t, json.Unmarshal(message["content"], &content))
	assert.Equal(t, "Paris.", content)
}

func TestSanitizeChatResponsePassthrough(t *testing.T) {
	// Non-object bodies come back unchanged.
	sse := []byte("data: {\"id\":\"x\"}\n\n")
	assert.Equal(t, sse, SanitizeChatResponse(sse))

	arr := []byte(`[1,2,3]`)
	assert.Equal(t, arr, SanitizeChatResponse(arr))
}

func TestSanitizeChatResponseNonStringContent(t *testing.T) {
	// Structured content (tool results, multimodal parts) is left alone.
	body := []byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}]}`)
	cleaned := SanitizeChatResponse(body)

	var payload struct {
		Choices []struct {
			Message struct {
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	require.NoError(t, json.Unmarshal(cleaned, &payload))
	require.Len(t, payload.Choices, 1)
	assert.JSONEq(t, `[{"type":"text","text":"hi"}]`, string(payload.Choices[0].Message.Content))
}
