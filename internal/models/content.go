package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageContent is a message body that may be a plain string or an array of
// typed parts. Both the chat dialect and the messages dialect use this shape:
//   - string: "Hello, how are you?"
//   - array:  [{"type": "text", "text": "Hello"}, {"type": "image_url", ...}]
//
// Array parts are kept as raw JSON so unknown part types survive the proxy
// untouched.
type MessageContent struct {
	Text    string            // Plain text when string format
	Parts   []json.RawMessage // Raw parts when array format
	IsArray bool              // Tracks original format for faithful re-serialization
}

// NewTextContent wraps plain text as string-form content.
func NewTextContent(text string) *MessageContent {
	return &MessageContent{Text: text}
}

// UnmarshalJSON handles both string and array formats.
func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		m.Text = str
		m.IsArray = false
		return nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err == nil {
		m.Parts = parts
		m.IsArray = true
		return nil
	}

	return fmt.Errorf("content must be a string or an array of content parts")
}

// MarshalJSON preserves the original format.
func (m MessageContent) MarshalJSON() ([]byte, error) {
	if m.IsArray {
		if m.Parts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(m.Parts)
	}
	return json.Marshal(m.Text)
}

// textPart is the subset of a content part used when flattening to text.
type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// String flattens the content to plain text: string content as-is, array
// content as the text of its "text" parts joined with single spaces, empty
// parts dropped.
func (m *MessageContent) String() string {
	if !m.IsArray {
		return m.Text
	}
	var texts []string
	for _, raw := range m.Parts {
		var p textPart
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// SystemPrompt is a system instruction that may be a plain string or an array
// of content blocks, mirroring MessageContent.
type SystemPrompt struct {
	Text    string
	Blocks  []json.RawMessage
	IsArray bool
}

// UnmarshalJSON handles both string and array formats.
func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.Text = str
		s.IsArray = false
		return nil
	}

	var blocks []json.RawMessage
	if err := json.Unmarshal(data, &blocks); err == nil {
		s.Blocks = blocks
		s.IsArray = true
		return nil
	}

	return fmt.Errorf("system must be a string or an array of content blocks")
}

// MarshalJSON preserves the original format.
func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.IsArray {
		if s.Blocks == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(s.Blocks)
	}
	return json.Marshal(s.Text)
}

// String flattens the prompt to plain text the same way MessageContent does.
func (s *SystemPrompt) String() string {
	if !s.IsArray {
		return s.Text
	}
	var texts []string
	for _, raw := range s.Blocks {
		var p textPart
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// IsEmpty reports whether the prompt has no textual content.
func (s *SystemPrompt) IsEmpty() bool {
	if s == nil {
		return true
	}
	return s.String() == ""
}
