package models

// Messages-dialect request and response shapes. Requests are translated to
// the chat dialect before provider dispatch; responses are translated back.

// AnthropicMessage is a single turn in a messages-dialect conversation.
type AnthropicMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// AnthropicChatRequest is the request body accepted on the messages endpoint.
// Sampling parameters are accepted for wire compatibility; the gateway relays
// only model, flattened messages, and the stream flag upstream.
type AnthropicChatRequest struct {
	Model         string             `json:"model"`
	Messages      []AnthropicMessage `json:"messages"`
	System        *SystemPrompt      `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	TopK          *int               `json:"top_k,omitempty"`
}

// AnthropicContent is one block of response content.
type AnthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AnthropicUsage reports token counts in the messages dialect.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AnthropicResponse is the non-streaming messages-dialect response body.
type AnthropicResponse struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	Role         string             `json:"role"`
	Content      []AnthropicContent `json:"content"`
	Model        string             `json:"model"`
	StopReason   string             `json:"stop_reason"`
	StopSequence *string            `json:"stop_sequence"`
	Usage        AnthropicUsage     `json:"usage"`
}
