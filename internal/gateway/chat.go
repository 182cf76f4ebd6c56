package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/clawline/internal/chat"
	"github.com/ehrlich-b/clawline/internal/filter"
)

// applyChat runs on the read loop so events fold in arrival order.
func (s *Session) applyChat(gen uint64, raw json.RawMessage) {
	ev, err := chat.DecodeEvent(raw)
	if err != nil {
		s.log.Warn("dropping chat event", "err", &ProtocolError{Kind: ProtocolMalformed, Err: err})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	msgs, notes := s.asm.Apply(ev, s.messages)
	if !sameList(msgs, s.messages) {
		s.setMessagesLocked(msgs)
	}
	for _, n := range notes {
		s.events.Publish(Event{Kind: EventKindChat, Chat: n})
	}
}

// sameList reports whether a and b share a backing array and length. The
// assembler returns its input unchanged when nothing moved.
func sameList(a, b []chat.Message) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}

// SendMessage appends text as a user message and sends it to the agent. A
// nil error means the gateway accepted it; the reply arrives as chat events.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	msgs := make([]chat.Message, len(s.messages), len(s.messages)+1)
	copy(msgs, s.messages)
	msgs = append(msgs, chat.Message{Role: chat.RoleUser, Content: text, Timestamp: time.Now().UnixMilli()})
	s.setMessagesLocked(msgs)
	s.mu.Unlock()

	resp, err := s.Request(ctx, MethodChatSend, ChatSendParams{
		SessionKey:     s.cfg.SessionKey,
		Message:        text,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if err := resp.Err(); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// FetchHistory replaces the message list with the gateway's transcript.
func (s *Session) FetchHistory(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.fetchHistory(ctx, gen)
}

func (s *Session) fetchHistory(ctx context.Context, gen uint64) error {
	resp, err := s.Request(ctx, MethodChatHistory, ChatHistoryParams{
		SessionKey: s.cfg.SessionKey,
		Limit:      s.cfg.HistoryLimit,
	})
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return fmt.Errorf("chat.history: %w", err)
	}
	var p HistoryPayload
	if err := json.Unmarshal(resp.Payload, &p); err != nil {
		return &ProtocolError{Kind: ProtocolMalformed, Err: err}
	}
	msgs := HistoryMessages(p.Messages)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil
	}
	// the transcript already holds whatever was streaming
	s.asm.Reset()
	s.setMessagesLocked(msgs)
	s.log.Debug("history loaded", "messages", len(msgs))
	return nil
}

// HistoryMessages converts history entries to displayable messages. Assistant
// content goes through the message filter and blank entries are dropped.
func HistoryMessages(entries []HistoryEntry) []chat.Message {
	out := make([]chat.Message, 0, len(entries))
	for _, e := range entries {
		role := e.Role
		if role == "" {
			role = chat.RoleUser
		}
		content := chat.ExtractText(e.Content)
		var media string
		if role == chat.RoleAssistant {
			res := filter.Process(content)
			if !res.ShouldDisplay {
				continue
			}
			content, media = res.Text, res.MediaPath
		}
		if chat.IsBlank(content) {
			continue
		}
		out = append(out, chat.Message{Role: role, Content: content, Timestamp: e.TS, MediaPath: media})
	}
	return out
}
