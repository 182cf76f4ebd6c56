package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessSentinels(t *testing.T) {
	for _, raw := range []string{"HEARTBEAT_OK", "  HEARTBEAT_OK  \n", "NO_REPLY", "\tNO_REPLY"} {
		got := Process(raw)
		assert.Equal(t, Result{}, got, "input %q", raw)
		assert.False(t, got.ShouldDisplay)
	}
}

func TestProcessMedia(t *testing.T) {
	got := Process("MEDIA: /tmp/a.png\nHello")
	assert.Equal(t, Result{Text: "Hello", MediaPath: "/tmp/a.png", HasMedia: true, ShouldDisplay: true}, got)
}

func TestProcessMediaOnly(t *testing.T) {
	got := Process("MEDIA:/tmp/voice.ogg")
	assert.Equal(t, "", got.Text)
	assert.Equal(t, "/tmp/voice.ogg", got.MediaPath)
	assert.True(t, got.ShouldDisplay)
}

func TestProcessDropsSentinelLines(t *testing.T) {
	got := Process("first\nHEARTBEAT_OK\n  NO_REPLY \nsecond")
	assert.Equal(t, "first\nsecond", got.Text)
	assert.True(t, got.ShouldDisplay)
}

func TestProcessKeepsIndentation(t *testing.T) {
	got := Process("list:\n  - one\n  - two")
	assert.Equal(t, "list:\n  - one\n  - two", got.Text)
}

func TestProcessReplyTags(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"[[reply_to_current]] Hi", "Hi"},
		{"[[ reply_to_current ]]Hi", "Hi"},
		{"[[REPLY_TO_CURRENT]] Hi", "Hi"},
		{"[[reply_to: 12345]] Sure thing", "Sure thing"},
		{"[[ reply_to:abc-def ]]\nok", "ok"},
		{"no tags [here]", "no tags [here]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Process(tt.in).Text, "input %q", tt.in)
	}
}

func TestProcessTagOnlyIsHidden(t *testing.T) {
	got := Process("[[reply_to_current]]")
	assert.False(t, got.ShouldDisplay)
}

func TestShouldDisplay(t *testing.T) {
	assert.False(t, ShouldDisplay(""))
	assert.False(t, ShouldDisplay("   "))
	assert.False(t, ShouldDisplay(" NO_REPLY "))
	assert.True(t, ShouldDisplay("hello"))
}

func TestProcessEmptyMediaDirective(t *testing.T) {
	got := Process("MEDIA:")
	assert.Equal(t, Result{HasMedia: true, ShouldDisplay: true}, got)

	got = Process("MEDIA:   \nNO_REPLY")
	assert.True(t, got.HasMedia)
	assert.Equal(t, "", got.MediaPath)
	assert.True(t, got.ShouldDisplay)
}

func TestProcessCRLF(t *testing.T) {
	got := Process("MEDIA: /tmp/a.png\r\nfirst\r\nHEARTBEAT_OK\r\nsecond\r\n")
	assert.Equal(t, "first\nsecond", got.Text)
	assert.Equal(t, "/tmp/a.png", got.MediaPath)

	got = Process("one\rtwo")
	assert.Equal(t, "one\ntwo", got.Text)
}
