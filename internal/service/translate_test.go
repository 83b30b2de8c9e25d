//go:build !integration && !e2e
// +build !integration,!e2e

package service

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/internal/models"
)

func TestMessagesToChat(t *testing.T) {
	var req models.AnthropicChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"model": "claude-3",
		"max_tokens": 1024,
		"temperature": 0.2,
		"system": "Be brief.",
		"messages": [
			{"role": "user", "content": "Hello"},
			{"role": "assistant", "content": [{"type":"text","text":"Hi"},{"type":"text","text":"there"}]},
			{"role": "user", "content": "Bye"}
		],
		"stream": true
	}`), &req))

	chat := MessagesToChat(&req)

	assert.Equal(t, "claude-3", chat.Model)
	assert.True(t, chat.Stream)
	require.Len(t, chat.Messages, 4)
	assert.Equal(t, "system", chat.Messages[0].Role)
	assert.Equal(t, "Be brief.", chat.Messages[0].Content.String())
	assert.Equal(t, "user", chat.Messages[1].Role)
	assert.Equal(t, "Hello", chat.Messages[1].Content.String())
	// Block-list content flattens to its text parts joined with spaces.
	assert.Equal(t, "Hi there", chat.Messages[2].Content.String())
	assert.Equal(t, "Bye", chat.Messages[3].Content.String())
	// Sampling parameters never cross the translation.
	assert.Empty(t, chat.Extra)
}

func TestMessagesToChatWithoutSystem(t *testing.T) {
	var req models.AnthropicChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"model": "claude-3",
		"messages": [{"role": "user", "content": "Hello"}]
	}`), &req))

	chat := MessagesToChat(&req)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, "user", chat.Messages[0].Role)
	assert.False(t, chat.Stream)
}

func TestMessagesToChatEmptySystemDropped(t *testing.T) {
	var req models.AnthropicChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"model": "claude-3",
		"system": "",
		"messages": [{"role": "user", "content": "Hello"}]
	}`), &req))

	chat := MessagesToChat(&req)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, "user", chat.Messages[0].Role)
}

func TestChatResponseToMessages(t *testing.T) {
	body := []byte(`{
		"id": "chatcmpl-42",
		"model": "gpt-4o",
		"choices": [{"message": {"role": "assistant", "content": "Hello!"}}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 3}
	}`)

	resp := ChatResponseToMessages(body, "claude-3")

	assert.Equal(t, "chatcmpl-42", resp.ID)
	assert.Equal(t, "message", resp.Type)
	assert.Equal(t, "assistant", resp.Role)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "text", resp.Content[0].Type)
	assert.Equal(t, "Hello!", resp.Content[0].Text)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)
}

func TestChatResponseToMessagesFallbacks(t *testing.T) {
	// Upstreams that omit id or model still produce a well-formed response.
	resp := ChatResponseToMessages([]byte(`{"choices":[]}`), "claude-3")
	assert.Equal(t, "msg_none", resp.ID)
	assert.Equal(t, "claude-3", resp.Model)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "", resp.Content[0].Text)

	// A body that is not JSON at all degrades the same way.
	resp = ChatResponseToMessages([]byte("upstream exploded"), "claude-3")
	assert.Equal(t, "msg_none", resp.ID)
	assert.Equal(t, "claude-3", resp.Model)
}

// decodeFrame strips the SSE framing and unmarshals the payload.
func decodeFrame(t *testing.T, frame []byte) map[string]any {
	t.Helper()
	text := string(frame)
	require.True(t, strings.HasPrefix(text, "data: "), "frame %q", text)
	require.True(t, strings.HasSuffix(text, "\n\n"), "frame %q", text)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(text, "data: "), "\n\n")), &payload))
	return payload
}

func TestMessagesStreamSkeleton(t *testing.T) {
	start := MessagesStreamStart("claude-3")
	require.Len(t, start, 2)

	first := decodeFrame(t, start[0])
	assert.Equal(t, "message_start", first["type"])
	message := first["message"].(map[string]any)
	assert.Equal(t, "msg_start", message["id"])
	assert.Equal(t, "assistant", message["role"])
	assert.Equal(t, "claude-3", message["model"])
	assert.Equal(t, []any{}, message["content"])

	second := decodeFrame(t, start[1])
	assert.Equal(t, "content_block_start", second["type"])
	assert.Equal(t, float64(0), second["index"])

	end := MessagesStreamEnd()
	require.Len(t, end, 3)
	assert.Equal(t, "content_block_stop", decodeFrame(t, end[0])["type"])
	delta := decodeFrame(t, end[1])
	assert.Equal(t, "message_delta", delta["type"])
	assert.Equal(t, "end_turn", delta["delta"].(map[string]any)["stop_reason"])
	assert.Equal(t, "message_stop", decodeFrame(t, end[2])["type"])
}

func TestMessagesStreamDelta(t *testing.T) {
	frame := MessagesStreamDelta("Hello")
	payload := decodeFrame(t, frame)
	assert.Equal(t, "content_block_delta", payload["type"])
	delta := payload["delta"].(map[string]any)
	assert.Equal(t, "text_delta", delta["type"])
	assert.Equal(t, "Hello", delta["text"])

	// Reasoning-only deltas collapse to nothing rather than an empty frame.
	assert.Nil(t, MessagesStreamDelta("<think>internal</think>"))
	assert.Nil(t, MessagesStreamDelta(""))
}

func TestChatDeltaContent(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
		ok   bool
	}{
		{"content delta", `{"choices":[{"delta":{"content":"hi"}}]}`, "hi", true},
		{"explicit empty content", `{"choices":[{"delta":{"content":""}}]}`, "", true},
		{"role-only delta", `{"choices":[{"delta":{"role":"assistant"}}]}`, "", false},
		{"usage frame without choices", `{"choices":[],"usage":{"total_tokens":9}}`, "", false},
		{"not json", `[DONE]`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ChatDeltaContent([]byte(tt.data))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRewriteEndpoint(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1/embeddings",
		RewriteEndpoint("https://api.openai.com/v1/chat/completions", "/embeddings"))
	assert.Equal(t, "https://api.openai.com/v1/images/generations",
		RewriteEndpoint("https://api.openai.com/v1/chat/completions", "/images/generations"))
	// Endpoints without the chat segment pass through untouched.
	assert.Equal(t, "https://gateway.example.com/custom",
		RewriteEndpoint("https://gateway.example.com/custom", "/embeddings"))
}

func TestThinkFilter(t *testing.T) {
	f := &ThinkFilter{}

	assert.Equal(t, []byte("Answer: "), f.Filter([]byte("Answer: <think>let me see")))
	assert.Nil(t, f.Filter([]byte("still reasoning")))
	assert.Equal(t, []byte(" 42"), f.Filter([]byte("done</think> 42")))
	assert.Equal(t, []byte("."), f.Filter([]byte(".")))
}

func TestThinkFilterTagAtChunkEdges(t *testing.T) {
	f := &ThinkFilter{}

	assert.Nil(t, f.Filter([]byte("<think>")))
	assert.Nil(t, f.Filter([]byte("hidden")))
	assert.Nil(t, f.Filter([]byte("</think>")))
	assert.Equal(t, []byte("visible"), f.Filter([]byte("visible")))
}
