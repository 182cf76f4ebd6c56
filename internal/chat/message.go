// Package chat holds the displayable message model and the assembler that
// folds streaming gateway chat events into it.
package chat

import (
	"encoding/json"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat event states.
const (
	StateDelta = "delta"
	StateFinal = "final"
)

// Message is one displayable chat entry.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"ts"` // unix millis
	MediaPath string `json:"mediaPath,omitempty"`
	RunID     string `json:"runId,omitempty"` // set on assistant messages built from a stream
}

// Event is a chat event as delivered by the gateway, with its text extracted.
type Event struct {
	SessionKey string
	State      string
	RunID      string
	Text       string
}

// Payload is the wire shape of a "chat" event.
type Payload struct {
	SessionKey string          `json:"sessionKey"`
	State      string          `json:"state"`
	RunID      string          `json:"runId"`
	Message    json.RawMessage `json:"message"`
}

// ContentBlock is one element of a message content array.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DecodeEvent decodes a chat event payload. Missing sessionKey defaults to
// "main" and missing state to "delta".
func DecodeEvent(raw json.RawMessage) (Event, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Event{}, err
	}
	ev := Event{
		SessionKey: p.SessionKey,
		State:      p.State,
		RunID:      p.RunID,
	}
	if ev.SessionKey == "" {
		ev.SessionKey = "main"
	}
	if ev.State == "" {
		ev.State = StateDelta
	}
	if len(p.Message) > 0 {
		var m struct {
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(p.Message, &m); err == nil {
			ev.Text = ExtractText(m.Content)
		}
	}
	return ev, nil
}

// ExtractText returns the first text-typed block of a content array, or the
// content itself when it is a plain string.
func ExtractText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return ""
	}
	for _, b := range blocks {
		if b.Type == "text" {
			return b.Text
		}
	}
	return ""
}

// IsBlank reports whether s is empty or only whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
