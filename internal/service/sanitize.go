package service

import (
	"encoding/json"
	"regexp"
	"strings"
)

// thinkPattern matches reasoning blocks some upstreams embed in assistant
// content. (?s) lets the block span newlines; the match is non-greedy so
// multiple blocks in one body are each removed.
var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink removes every <think>…</think> block and trims the surrounding
// whitespace left behind.
func StripThink(content string) string {
	return strings.TrimSpace(thinkPattern.ReplaceAllString(content, ""))
}

// FilterChunkContent removes <think>…</think> blocks from a streaming delta
// without trimming, so legitimate inter-token whitespace survives.
func FilterChunkContent(content string) string {
	return thinkPattern.ReplaceAllString(content, "")
}

var (
	responseFields = map[string]bool{
		"id": true, "object": true, "created": true, "model": true,
		"choices": true, "usage": true, "system_fingerprint": true,
	}
	messageFields = map[string]bool{
		"role": true, "content": true, "tool_calls": true,
		"function_call": true, "name": true,
	}
)

// SanitizeChatResponse reduces an upstream chat completion body to the
// standard field set, dropping vendor extensions, and strips reasoning
// blocks from each choice's string content. Bodies that do not parse as a
// JSON object pass through untouched.
func SanitizeChatResponse(body []byte) []byte {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return body
	}

	for field := range payload {
		if !responseFields[field] {
			delete(payload, field)
		}
	}

	if rawChoices, ok := payload["choices"]; ok {
		var choices []map[string]json.RawMessage
		if err := json.Unmarshal(rawChoices, &choices); err == nil {
			for _, choice := range choices {
				sanitizeChoiceMessage(choice)
			}
			if cleaned, err := json.Marshal(choices); err == nil {
				payload["choices"] = cleaned
			}
		}
	}

	cleaned, err := json.Marshal(payload)
	if err != nil {
		return body
	}
	return cleaned
}

func sanitizeChoiceMessage(choice map[string]json.RawMessage) {
	rawMessage, ok := choice["message"]
	if !ok {
		return
	}
	var message map[string]json.RawMessage
	if err := json.Unmarshal(rawMessage, &message); err != nil {
		return
	}

	for field := range message {
		if !messageFields[field] {
			delete(message, field)
		}
	}
	if rawContent, ok := message["content"]; ok {
		var content string
		if err := json.Unmarshal(rawContent, &content); err == nil {
			if cleaned, err := json.Marshal(StripThink(content)); err == nil {
				message["content"] = cleaned
			}
		}
	}

	if cleaned, err := json.Marshal(message); err == nil {
		choice["message"] = cleaned
	}
}
