package models

import (
	"encoding/json"
	"fmt"
)

// ChatMessage is one message of a chat-completions request. Content may be
// null for assistant messages that carry only tool calls. Tool-call payloads
// are kept raw so they survive the proxy verbatim.
type ChatMessage struct {
	Role         string          `json:"role"`
	Content      *MessageContent `json:"content,omitempty"`
	Name         string          `json:"name,omitempty"`
	ToolCalls    json.RawMessage `json:"tool_calls,omitempty"`
	FunctionCall json.RawMessage `json:"function_call,omitempty"`
	ToolCallID   string          `json:"tool_call_id,omitempty"`
}

// ChatRequest is a chat-completions request. Fields the gateway does not
// interpret are preserved verbatim in Extra and re-emitted on marshal, so
// provider-specific parameters pass through untouched.
type ChatRequest struct {
	Model    string
	Messages []ChatMessage
	Stream   bool
	Extra    map[string]json.RawMessage
}

// UnmarshalJSON splits known fields from passthrough fields.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	if raw, ok := fields["model"]; ok {
		if err := json.Unmarshal(raw, &r.Model); err != nil {
			return fmt.Errorf("model must be a string")
		}
		delete(fields, "model")
	}
	if raw, ok := fields["messages"]; ok {
		if err := json.Unmarshal(raw, &r.Messages); err != nil {
			return fmt.Errorf("invalid messages: %w", err)
		}
		delete(fields, "messages")
	}
	if raw, ok := fields["stream"]; ok {
		if err := json.Unmarshal(raw, &r.Stream); err != nil {
			return fmt.Errorf("stream must be a boolean")
		}
		delete(fields, "stream")
	}

	r.Extra = fields
	return nil
}

// MarshalJSON re-assembles the full request body.
func (r ChatRequest) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(r.Extra)+3)
	for k, v := range r.Extra {
		fields[k] = v
	}

	model, err := json.Marshal(r.Model)
	if err != nil {
		return nil, err
	}
	fields["model"] = model

	messages, err := json.Marshal(r.Messages)
	if err != nil {
		return nil, err
	}
	fields["messages"] = messages

	stream, err := json.Marshal(r.Stream)
	if err != nil {
		return nil, err
	}
	fields["stream"] = stream

	return json.Marshal(fields)
}

// PromptValue is a completion prompt that may be a string or a string array.
type PromptValue struct {
	Text    string
	List    []string
	IsArray bool
}

// UnmarshalJSON handles both prompt formats.
func (p *PromptValue) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		p.Text = str
		p.IsArray = false
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		p.List = list
		p.IsArray = true
		return nil
	}
	return fmt.Errorf("prompt must be a string or an array of strings")
}

// MarshalJSON preserves the original format.
func (p PromptValue) MarshalJSON() ([]byte, error) {
	if p.IsArray {
		return json.Marshal(p.List)
	}
	return json.Marshal(p.Text)
}

// IsZero reports whether the prompt was never set.
func (p *PromptValue) IsZero() bool {
	return !p.IsArray && p.Text == "" && p.List == nil
}

// CompletionRequest is a legacy text-completions request.
type CompletionRequest struct {
	Model       string          `json:"model"`
	Prompt      PromptValue     `json:"prompt"`
	Suffix      *string         `json:"suffix,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	N           *int            `json:"n,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Logprobs    *int            `json:"logprobs,omitempty"`
	Stop        json.RawMessage `json:"stop,omitempty"`
}

// EmbeddingRequest is an embeddings request. Input may be a string, an array
// of strings, or token arrays; it is never interpreted here.
type EmbeddingRequest struct {
	Model string          `json:"model"`
	Input json.RawMessage `json:"input"`
	User  string          `json:"user,omitempty"`
}

// ImageGenerationRequest is an image-generations request.
type ImageGenerationRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              *int   `json:"n,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Size           string `json:"size,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	User           string `json:"user,omitempty"`
}

// ModelInfo is one entry of the models-listing endpoint.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the standard model-list shape.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// NewModelList builds a model list from group names.
func NewModelList(names []string) ModelList {
	data := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		data = append(data, ModelInfo{ID: name, Object: "model"})
	}
	return ModelList{Object: "list", Data: data}
}
