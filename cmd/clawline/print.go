package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ehrlich-b/clawline/internal/chat"
)

func speaker(role string) string {
	if role == chat.RoleAssistant {
		return "agent"
	}
	if role == chat.RoleUser {
		return "you"
	}
	return role
}

// formatMessage renders one transcript line, indenting continuation lines.
func formatMessage(m chat.Message) string {
	var b strings.Builder
	if m.Timestamp > 0 {
		b.WriteString(time.UnixMilli(m.Timestamp).Format("[Jan 2 15:04] "))
	}
	b.WriteString(speaker(m.Role))
	b.WriteString(": ")
	b.WriteString(strings.ReplaceAll(m.Content, "\n", "\n    "))
	if m.MediaPath != "" {
		fmt.Fprintf(&b, "\n    [media] %s", m.MediaPath)
	}
	return b.String()
}

func printMessages(w io.Writer, msgs []chat.Message) {
	for _, m := range msgs {
		fmt.Fprintln(w, formatMessage(m))
	}
}

// streamPrinter writes assistant replies as they stream in. Deltas are
// cumulative, so only the unseen suffix is printed.
type streamPrinter struct {
	w       io.Writer
	live    bool // print deltas; otherwise only finals
	runID   string
	printed string
}

func (p *streamPrinter) handle(n chat.Notification) {
	switch n.Kind {
	case chat.KindDelta:
		if !p.live {
			return
		}
		if n.RunID != p.runID || !strings.HasPrefix(n.Text, p.printed) {
			p.finishLine()
			p.runID = n.RunID
			fmt.Fprint(p.w, "agent: ")
		}
		fmt.Fprint(p.w, strings.ReplaceAll(strings.TrimPrefix(n.Text, p.printed), "\n", "\n    "))
		p.printed = n.Text
	case chat.KindFinal:
		if p.live && p.printed != "" && n.RunID == p.runID && strings.HasPrefix(n.Text, p.printed) {
			fmt.Fprint(p.w, strings.ReplaceAll(strings.TrimPrefix(n.Text, p.printed), "\n", "\n    "))
			fmt.Fprintln(p.w)
		} else {
			p.finishLine()
			fmt.Fprintln(p.w, formatMessage(chat.Message{Role: chat.RoleAssistant, Content: n.Text}))
		}
		if n.MediaPath != "" {
			fmt.Fprintf(p.w, "    [media] %s\n", n.MediaPath)
		}
		p.runID, p.printed = "", ""
	}
}

func (p *streamPrinter) finishLine() {
	if p.printed != "" {
		fmt.Fprintln(p.w)
	}
	p.printed = ""
}
