package service

import (
	"encoding/json"
	"strings"

	"github.com/llmrelay/llmrelay/internal/models"
)

// MessagesToChat converts an inbound messages-dialect request into the
// canonical chat form. An optional system prompt becomes a leading system
// message; block-list content collapses into a space-joined string of its
// text parts. Only the model, the flattened messages, and the stream flag
// are carried upstream.
func MessagesToChat(req *models.AnthropicChatRequest) *models.ChatRequest {
	messages := make([]models.ChatMessage, 0, len(req.Messages)+1)

	if req.System != nil && !req.System.IsEmpty() {
		if text := req.System.String(); text != "" {
			messages = append(messages, models.ChatMessage{
				Role:    "system",
				Content: models.NewTextContent(text),
			})
		}
	}
	for _, msg := range req.Messages {
		messages = append(messages, models.ChatMessage{
			Role:    msg.Role,
			Content: models.NewTextContent(msg.Content.String()),
		})
	}

	return &models.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   req.Stream,
	}
}

// ChatResponseToMessages converts a completed chat completion body into the
// messages-dialect response shape. Tool calls do not survive the conversion;
// only the first choice's text content is carried.
func ChatResponseToMessages(body []byte, requestModel string) *models.AnthropicResponse {
	var payload struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	_ = json.Unmarshal(body, &payload)

	id := payload.ID
	if id == "" {
		id = "msg_none"
	}
	model := payload.Model
	if model == "" {
		model = requestModel
	}
	var text string
	if len(payload.Choices) > 0 {
		text = payload.Choices[0].Message.Content
	}

	return &models.AnthropicResponse{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Content:    []models.AnthropicContent{{Type: "text", Text: text}},
		Model:      model,
		StopReason: "end_turn",
		Usage: models.AnthropicUsage{
			InputTokens:  payload.Usage.PromptTokens,
			OutputTokens: payload.Usage.CompletionTokens,
		},
	}
}

// Frames for the synthesized messages-dialect stream. The synthesizer always
// emits the fixed skeleton message_start, content_block_start, deltas,
// content_block_stop, message_delta, message_stop regardless of what the
// upstream produced.

type messageStartFrame struct {
	Type    string           `json:"type"`
	Message messageStartBody `json:"message"`
}

type messageStartBody struct {
	ID      string                `json:"id"`
	Type    string                `json:"type"`
	Role    string                `json:"role"`
	Content []any                 `json:"content"`
	Model   string                `json:"model"`
	Usage   models.AnthropicUsage `json:"usage"`
}

type contentBlockStartFrame struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock contentBlock `json:"content_block"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type contentBlockDeltaFrame struct {
	Type  string    `json:"type"`
	Index int       `json:"index"`
	Delta textDelta `json:"delta"`
}

type textDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type contentBlockStopFrame struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type messageDeltaFrame struct {
	Type  string           `json:"type"`
	Delta stopDelta        `json:"delta"`
	Usage messageDeltaUsage `json:"usage"`
}

type stopDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type messageDeltaUsage struct {
	OutputTokens int `json:"output_tokens"`
}

type messageStopFrame struct {
	Type string `json:"type"`
}

func sseFrame(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)
	return frame
}

// MessagesStreamStart returns the frames that open every synthesized stream.
func MessagesStreamStart(model string) [][]byte {
	return [][]byte{
		sseFrame(messageStartFrame{
			Type: "message_start",
			Message: messageStartBody{
				ID:      "msg_start",
				Type:    "message",
				Role:    "assistant",
				Content: []any{},
				Model:   model,
				Usage:   models.AnthropicUsage{},
			},
		}),
		sseFrame(contentBlockStartFrame{
			Type:         "content_block_start",
			Index:        0,
			ContentBlock: contentBlock{Type: "text", Text: ""},
		}),
	}
}

// MessagesStreamDelta returns a text delta frame, or nil when the text is
// empty after reasoning blocks are filtered out.
func MessagesStreamDelta(text string) []byte {
	filtered := FilterChunkContent(text)
	if filtered == "" {
		return nil
	}
	return sseFrame(contentBlockDeltaFrame{
		Type:  "content_block_delta",
		Index: 0,
		Delta: textDelta{Type: "text_delta", Text: filtered},
	})
}

// MessagesStreamEnd returns the frames that close the synthesized stream.
func MessagesStreamEnd() [][]byte {
	return [][]byte{
		sseFrame(contentBlockStopFrame{Type: "content_block_stop", Index: 0}),
		sseFrame(messageDeltaFrame{
			Type:  "message_delta",
			Delta: stopDelta{StopReason: "end_turn"},
			Usage: messageDeltaUsage{},
		}),
		sseFrame(messageStopFrame{Type: "message_stop"}),
	}
}

// ChatDeltaContent extracts choices[0].delta.content from one chat SSE data
// payload. The second return is false when the payload carries no content
// delta.
func ChatDeltaContent(data []byte) (string, bool) {
	var payload struct {
		Choices []struct {
			Delta struct {
				Content *string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", false
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Delta.Content == nil {
		return "", false
	}
	return *payload.Choices[0].Delta.Content, true
}

// RewriteEndpoint swaps the chat-completions path segment of a provider
// endpoint for another operation's segment. Endpoints without the segment
// pass through unchanged.
func RewriteEndpoint(endpoint, path string) string {
	if strings.Contains(endpoint, "/chat/completions") {
		return strings.Replace(endpoint, "/chat/completions", path, 1)
	}
	return endpoint
}

// ThinkFilter elides reasoning-block bytes from a raw byte stream. A single
// open/close flag carries across chunk boundaries: the opening tag's prefix
// is forwarded, the closing tag's suffix is forwarded, everything between is
// dropped. The filter does not buffer, so a tag split across a chunk
// boundary can leak.
type ThinkFilter struct {
	inBlock bool
}

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// Filter returns the bytes of chunk that should reach the client.
func (f *ThinkFilter) Filter(chunk []byte) []byte {
	text := string(chunk)
	if idx := strings.Index(text, thinkOpen); idx >= 0 {
		f.inBlock = true
		if idx == 0 {
			return nil
		}
		return []byte(text[:idx])
	}
	if idx := strings.Index(text, thinkClose); idx >= 0 {
		f.inBlock = false
		suffix := text[idx+len(thinkClose):]
		if suffix == "" {
			return nil
		}
		return []byte(suffix)
	}
	if f.inBlock {
		return nil
	}
	return chunk
}
