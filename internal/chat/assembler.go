package chat

import (
	"fmt"
	"time"

	"github.com/ehrlich-b/clawline/internal/filter"
)

// NotificationKind classifies what the assembler surfaced for an event.
type NotificationKind string

const (
	KindDelta NotificationKind = "delta"
	// KindTextComplete fires once per run on the first blank delta after text,
	// before the formal final event arrives.
	KindTextComplete NotificationKind = "textComplete"
	KindFinal        NotificationKind = "final"
)

// Notification is a consumer-visible result of applying a chat event.
type Notification struct {
	Kind       NotificationKind
	SessionKey string
	RunID      string
	Text       string
	MediaPath  string
}

// Assembler reduces an ordered stream of chat events for one session into
// displayable messages. Only one run is tracked at a time. Not safe for
// concurrent use; the gateway session serializes calls.
type Assembler struct {
	runID        string // run id as seen on the wire, may be empty
	key          string // tag written to Message.RunID for the live run
	buffer       string
	mediaPath    string
	textComplete bool
	lastFinal    string
	seq          int

	now func() int64
}

func NewAssembler() *Assembler {
	return &Assembler{now: func() int64 { return time.Now().UnixMilli() }}
}

// RunID returns the run currently being accumulated.
func (a *Assembler) RunID() string { return a.runID }

// Buffer returns the filtered text accumulated for the live run.
func (a *Assembler) Buffer() string { return a.buffer }

// Reset drops the live run without touching any message list.
func (a *Assembler) Reset() {
	a.runID = ""
	a.key = ""
	a.buffer = ""
	a.mediaPath = ""
	a.textComplete = false
}

// Apply folds ev into msgs. msgs is never modified in place; a new slice is
// returned whenever the list changes.
func (a *Assembler) Apply(ev Event, msgs []Message) ([]Message, []Notification) {
	switch ev.State {
	case StateFinal:
		return a.applyFinal(ev, msgs)
	case StateDelta:
		return a.applyDelta(ev, msgs)
	default:
		return msgs, nil
	}
}

func (a *Assembler) applyDelta(ev Event, msgs []Message) ([]Message, []Notification) {
	if ev.RunID != "" && ev.RunID == a.lastFinal && ev.RunID != a.runID {
		// late delta for a run that already finished
		return msgs, nil
	}

	if !IsBlank(ev.Text) {
		res := filter.Process(ev.Text)
		if !res.ShouldDisplay {
			return msgs, nil
		}
		if ev.RunID != a.runID {
			a.Reset()
			a.runID = ev.RunID
		}
		if a.key == "" {
			a.key = a.newKey(ev.RunID)
		}
		// delta text is cumulative: replace, never append
		a.buffer = res.Text
		a.mediaPath = res.MediaPath
		msgs = a.upsert(msgs, a.key, res.Text, res.MediaPath)
		return msgs, []Notification{{
			Kind:       KindDelta,
			SessionKey: ev.SessionKey,
			RunID:      ev.RunID,
			Text:       res.Text,
			MediaPath:  res.MediaPath,
		}}
	}

	if a.buffer != "" && !a.textComplete {
		a.textComplete = true
		res := filter.Process(a.buffer)
		return msgs, []Notification{{
			Kind:       KindTextComplete,
			SessionKey: ev.SessionKey,
			RunID:      a.runID,
			Text:       res.Text,
			MediaPath:  a.mediaPath,
		}}
	}

	if ev.RunID != a.runID {
		// empty first delta of a new run: track it without a visible message
		a.Reset()
		a.runID = ev.RunID
	}
	return msgs, nil
}

func (a *Assembler) applyFinal(ev Event, msgs []Message) ([]Message, []Notification) {
	defer a.Reset()

	text := ev.Text
	if IsBlank(text) {
		text = a.buffer
	}
	res := filter.Process(text)

	key := ev.RunID
	if ev.RunID == a.runID && a.key != "" {
		key = a.key
	}
	if ev.RunID != "" {
		a.lastFinal = ev.RunID
	}

	if IsBlank(res.Text) {
		return removeBlank(msgs, key), nil
	}

	mediaPath := res.MediaPath
	if mediaPath == "" && key == a.key {
		mediaPath = a.mediaPath
	}
	if key == "" {
		key = a.newKey("")
	}
	msgs = a.upsert(msgs, key, res.Text, mediaPath)
	return msgs, []Notification{{
		Kind:       KindFinal,
		SessionKey: ev.SessionKey,
		RunID:      ev.RunID,
		Text:       res.Text,
		MediaPath:  mediaPath,
	}}
}

func (a *Assembler) newKey(runID string) string {
	if runID != "" {
		return runID
	}
	a.seq++
	return fmt.Sprintf("local-%d", a.seq)
}

// upsert replaces the assistant message tagged key, or appends one.
func (a *Assembler) upsert(msgs []Message, key, text, mediaPath string) []Message {
	out := make([]Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	if i := indexOfRun(out, key); i >= 0 {
		out[i].Content = text
		out[i].MediaPath = mediaPath
		return out
	}
	return append(out, Message{
		Role:      RoleAssistant,
		Content:   text,
		Timestamp: a.now(),
		MediaPath: mediaPath,
		RunID:     key,
	})
}

func removeBlank(msgs []Message, key string) []Message {
	i := indexOfRun(msgs, key)
	if i < 0 || !IsBlank(msgs[i].Content) {
		return msgs
	}
	out := make([]Message, 0, len(msgs)-1)
	out = append(out, msgs[:i]...)
	return append(out, msgs[i+1:]...)
}

func indexOfRun(msgs []Message, key string) int {
	if key == "" {
		return -1
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant && msgs[i].RunID == key {
			return i
		}
	}
	return -1
}
