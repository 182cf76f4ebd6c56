// Package filter strips gateway control markers from assistant text before it
// reaches a display or speech sink.
package filter

import (
	"regexp"
	"strings"
)

// Sentinel tokens the gateway uses for silent turns.
const (
	HeartbeatOK = "HEARTBEAT_OK"
	NoReply     = "NO_REPLY"
)

const mediaPrefix = "MEDIA:"

var (
	replyCurrentRe = regexp.MustCompile(`(?i)\[\[\s*reply_to_current\s*\]\]`)
	replyToRe      = regexp.MustCompile(`(?i)\[\[\s*reply_to\s*:\s*[^\]]*\]\]`)
)

// Result is the displayable form of an assistant message.
type Result struct {
	Text          string
	MediaPath     string
	HasMedia      bool // a MEDIA: line was present, even with an empty path
	ShouldDisplay bool
}

// Process filters raw assistant text. It never fails.
func Process(raw string) Result {
	if isSentinel(strings.TrimSpace(raw)) {
		return Result{}
	}

	var (
		kept      []string
		mediaPath string
		hasMedia  bool
	)
	for _, line := range splitLines(raw) {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, mediaPrefix):
			mediaPath = strings.TrimSpace(strings.TrimPrefix(trimmed, mediaPrefix))
			hasMedia = true
		case isSentinel(trimmed):
		default:
			kept = append(kept, line)
		}
	}

	text := strings.Join(kept, "\n")
	text = replyCurrentRe.ReplaceAllString(text, "")
	text = replyToRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	return Result{
		Text:          text,
		MediaPath:     mediaPath,
		HasMedia:      hasMedia,
		ShouldDisplay: text != "" || hasMedia,
	}
}

// splitLines splits on \n, \r\n and lone \r.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

// ShouldDisplay is a cheap check for whether raw text is worth showing at all.
func ShouldDisplay(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return trimmed != "" && !isSentinel(trimmed)
}

func isSentinel(s string) bool {
	return s == HeartbeatOK || s == NoReply
}
