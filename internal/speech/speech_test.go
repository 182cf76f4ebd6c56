package speech

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/clawline/internal/chat"
)

type recordingEngine struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingEngine) Speak(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingEngine) spoken() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestQueueSpeaksOncePerRun(t *testing.T) {
	eng := &recordingEngine{}
	q := NewQueue(eng, quiet())
	defer q.Close()

	q.Handle(chat.Notification{Kind: chat.KindDelta, RunID: "r1", Text: "Hel"})
	q.Handle(chat.Notification{Kind: chat.KindTextComplete, RunID: "r1", Text: "Hello"})
	q.Handle(chat.Notification{Kind: chat.KindFinal, RunID: "r1", Text: "Hello!"})
	q.Handle(chat.Notification{Kind: chat.KindFinal, RunID: "r2", Text: "Second"})
	q.Handle(chat.Notification{Kind: chat.KindFinal, Text: "no run id"})
	q.Handle(chat.Notification{Kind: chat.KindFinal, RunID: "r3", Text: "   "})

	require.Eventually(t, func() bool { return len(eng.spoken()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Hello", "Second", "no run id"}, eng.spoken())
}

func TestQueueSpeaksRunsWithoutIDOnce(t *testing.T) {
	eng := &recordingEngine{}
	q := NewQueue(eng, quiet())
	defer q.Close()

	asm := chat.NewAssembler()
	var msgs []chat.Message
	feed := func(state, text string) {
		var notes []chat.Notification
		msgs, notes = asm.Apply(chat.Event{SessionKey: "main", State: state, Text: text}, msgs)
		for _, n := range notes {
			q.Handle(n)
		}
	}
	feed(chat.StateDelta, "Hello")
	feed(chat.StateDelta, "")
	feed(chat.StateFinal, "")
	// a second run without id is its own reply
	feed(chat.StateDelta, "Again")
	feed(chat.StateFinal, "Again")

	require.Eventually(t, func() bool { return len(eng.spoken()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"Hello", "Again"}, eng.spoken())
}

func TestQueueForgetsOldRuns(t *testing.T) {
	q := NewQueue(&recordingEngine{}, quiet())
	defer q.Close()
	assert.True(t, q.markRun("first"))
	for i := 0; i < recentRuns; i++ {
		q.markRun(string(rune('a' + i)))
	}
	assert.True(t, q.markRun("first"), "ring should have evicted the oldest run")
	assert.False(t, q.markRun("first"))
}

type blockingEngine struct{ started chan struct{} }

func (b *blockingEngine) Speak(ctx context.Context, text string) error {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestQueueDropsWhenFullAndCloseInterrupts(t *testing.T) {
	eng := &blockingEngine{started: make(chan struct{}, 1)}
	q := NewQueue(eng, quiet())

	q.Speak("busy")
	<-eng.started
	for i := 0; i < queueSize+5; i++ {
		q.Speak("more")
	}
	assert.Len(t, q.queue, queueSize)

	closed := make(chan struct{})
	go func() { q.Close(); close(closed) }()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not interrupt the engine")
	}
}

func TestCommandEngineArgs(t *testing.T) {
	e, err := NewCommandEngine("sh -c {text} -v {voice}", "en-gb")
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "hi", "-v", "en-gb"}, e.argv("hi"))

	e, err = NewCommandEngine("sh -v {voice} -s 180", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"-s", "180", "hello there"}, e.argv("hello there"))
}

func TestCommandEngineErrors(t *testing.T) {
	_, err := NewCommandEngine("   ", "")
	assert.Error(t, err)
	_, err = NewCommandEngine("definitely-not-a-tts-binary-xyz", "")
	assert.Error(t, err)
}

func TestCommandEngineRuns(t *testing.T) {
	e, err := NewCommandEngine("true", "")
	require.NoError(t, err)
	assert.NoError(t, e.Speak(context.Background(), "hello"))
	assert.NoError(t, e.Speak(context.Background(), "  "))
}
