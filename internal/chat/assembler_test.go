package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAssembler() *Assembler {
	a := NewAssembler()
	a.now = func() int64 { return 42 }
	return a
}

func delta(runID, text string) Event {
	return Event{SessionKey: "main", State: StateDelta, RunID: runID, Text: text}
}

func final(runID, text string) Event {
	return Event{SessionKey: "main", State: StateFinal, RunID: runID, Text: text}
}

// feed applies events in order and collects every notification.
func feed(a *Assembler, msgs []Message, events ...Event) ([]Message, []Notification) {
	var all []Notification
	for _, ev := range events {
		var n []Notification
		msgs, n = a.Apply(ev, msgs)
		all = append(all, n...)
	}
	return msgs, all
}

func kinds(ns []Notification) []NotificationKind {
	var out []NotificationKind
	for _, n := range ns {
		out = append(out, n.Kind)
	}
	return out
}

func TestCumulativeDeltasReplaceBuffer(t *testing.T) {
	a := newTestAssembler()
	msgs, _ := feed(a, nil,
		delta("r1", "He"),
		delta("r1", "Hello"),
		delta("r1", "Hello wor"),
		delta("r1", "Hello world"),
	)
	assert.Equal(t, "Hello world", a.Buffer())
	require.Len(t, msgs, 1)
	assert.Equal(t, Message{Role: RoleAssistant, Content: "Hello world", Timestamp: 42, RunID: "r1"}, msgs[0])
}

func TestTextCompleteEmittedOnce(t *testing.T) {
	a := newTestAssembler()
	_, ns := feed(a, nil,
		delta("r1", "Hello"),
		delta("r1", ""),
		delta("r1", ""),
		delta("r1", "  "),
	)
	var complete []Notification
	for _, n := range ns {
		if n.Kind == KindTextComplete {
			complete = append(complete, n)
		}
	}
	require.Len(t, complete, 1)
	assert.Equal(t, "Hello", complete[0].Text)
	assert.Equal(t, "r1", complete[0].RunID)
}

func TestFinalFallsBackToBuffer(t *testing.T) {
	a := newTestAssembler()
	msgs, ns := feed(a, nil,
		delta("r1", "Hi"),
		delta("r1", "Hi there"),
		final("r1", ""),
	)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hi there", msgs[0].Content)
	last := ns[len(ns)-1]
	assert.Equal(t, KindFinal, last.Kind)
	assert.Equal(t, "Hi there", last.Text)
	assert.Equal(t, "", a.Buffer())
	assert.Equal(t, "", a.RunID())
}

func TestFinalPrefersOwnText(t *testing.T) {
	a := newTestAssembler()
	msgs, ns := feed(a, nil, delta("r1", "draft"), final("r1", "[[reply_to_current]] Final answer"))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Final answer", msgs[0].Content)
	assert.Equal(t, "Final answer", ns[len(ns)-1].Text)
}

func TestFinalWithoutDeltasAppends(t *testing.T) {
	a := newTestAssembler()
	msgs, ns := feed(a, []Message{{Role: RoleUser, Content: "q"}}, final("r9", "answer"))
	require.Len(t, msgs, 2)
	assert.Equal(t, "answer", msgs[1].Content)
	assert.Equal(t, []NotificationKind{KindFinal}, kinds(ns))
}

func TestBlankFinalRemovesPlaceholder(t *testing.T) {
	a := newTestAssembler()
	placeholder := []Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "", RunID: "r1"},
	}
	a.runID, a.key = "r1", "r1"
	msgs, ns := a.Apply(final("r1", ""), placeholder)
	assert.Empty(t, ns)
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Len(t, placeholder, 2, "input slice must not be modified")
}

func TestBlankFinalKeepsNonEmptyMessages(t *testing.T) {
	a := newTestAssembler()
	history := []Message{{Role: RoleAssistant, Content: "older answer"}}
	msgs, ns := a.Apply(final("r2", "NO_REPLY"), history)
	assert.Empty(t, ns)
	assert.Equal(t, history, msgs)
}

func TestSentinelDeltaDropped(t *testing.T) {
	a := newTestAssembler()
	msgs, ns := feed(a, nil, delta("r1", "HEARTBEAT_OK"))
	assert.Empty(t, msgs)
	assert.Empty(t, ns)
	assert.Equal(t, "", a.RunID(), "dropped delta must not start a run")
}

func TestNewRunResetsAccumulator(t *testing.T) {
	a := newTestAssembler()
	msgs, ns := feed(a, nil,
		delta("r1", "first"),
		delta("r1", ""),
		delta("r2", "second"),
		delta("r2", ""),
	)
	assert.Equal(t, []NotificationKind{KindDelta, KindTextComplete, KindDelta, KindTextComplete}, kinds(ns))
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}

func TestEmptyFirstDeltaTracksRunWithoutMessage(t *testing.T) {
	a := newTestAssembler()
	msgs, ns := feed(a, nil, delta("r1", ""))
	assert.Empty(t, msgs)
	assert.Empty(t, ns)
	assert.Equal(t, "r1", a.RunID())
}

func TestDeltasWithoutRunID(t *testing.T) {
	a := newTestAssembler()
	history := []Message{{Role: RoleAssistant, Content: "from history"}}
	msgs, _ := feed(a, history, delta("", "a"), delta("", "ab"), final("", ""))
	require.Len(t, msgs, 2)
	assert.Equal(t, "from history", msgs[0].Content)
	assert.Equal(t, "ab", msgs[1].Content)
}

func TestLateDeltaAfterFinalIgnored(t *testing.T) {
	a := newTestAssembler()
	msgs, _ := feed(a, nil, delta("r1", "done"), final("r1", "done!"), delta("r1", "don"))
	require.Len(t, msgs, 1)
	assert.Equal(t, "done!", msgs[0].Content)
}

func TestMediaCarriedThrough(t *testing.T) {
	a := newTestAssembler()
	msgs, ns := feed(a, nil, delta("r1", "MEDIA: /tmp/a.png\nlook"), final("r1", ""))
	require.Len(t, msgs, 1)
	assert.Equal(t, "/tmp/a.png", msgs[0].MediaPath)
	assert.Equal(t, "/tmp/a.png", ns[len(ns)-1].MediaPath)
}

func TestDecodeEvent(t *testing.T) {
	raw := json.RawMessage(`{"sessionKey":"s1","state":"final","runId":"r1",
		"message":{"role":"assistant","content":[{"type":"thinking","text":"hmm"},{"type":"text","text":"hi"},{"type":"text","text":"second"}]}}`)
	ev, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, Event{SessionKey: "s1", State: StateFinal, RunID: "r1", Text: "hi"}, ev)
}

func TestDecodeEventDefaults(t *testing.T) {
	ev, err := DecodeEvent(json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "main", ev.SessionKey)
	assert.Equal(t, StateDelta, ev.State)
	assert.Equal(t, "", ev.Text)

	_, err = DecodeEvent(json.RawMessage(`[`))
	assert.Error(t, err)
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "plain", ExtractText(json.RawMessage(`"plain"`)))
	assert.Equal(t, "", ExtractText(json.RawMessage(`[{"type":"image"}]`)))
	assert.Equal(t, "", ExtractText(json.RawMessage(`42`)))
	assert.Equal(t, "", ExtractText(nil))
}
