package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/ehrlich-b/clawline/internal/chat"
)

const (
	queueSize  = 16
	recentRuns = 32
)

// Queue speaks replies one at a time in the background. Each run is spoken
// at most once: whichever of textComplete or final arrives first wins.
type Queue struct {
	engine Engine
	queue  chan string
	log    *slog.Logger

	mu     sync.Mutex
	spoken []string // ring of recently spoken run ids
	next   int

	anonPending bool // textComplete spoken for a run without id, final not seen

	cancel context.CancelFunc
	done   chan struct{}
}

func NewQueue(engine Engine, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		engine: engine,
		queue:  make(chan string, queueSize),
		log:    log.With("component", "speech"),
		spoken: make([]string, recentRuns),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go q.loop(ctx)
	return q
}

func (q *Queue) loop(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-q.queue:
			if ctx.Err() != nil {
				return
			}
			if err := q.engine.Speak(ctx, text); err != nil && ctx.Err() == nil {
				q.log.Warn("tts error", "err", err)
			}
		}
	}
}

// Handle speaks n if it completes a run that has not been spoken yet.
func (q *Queue) Handle(n chat.Notification) {
	if n.Kind != chat.KindTextComplete && n.Kind != chat.KindFinal {
		return
	}
	if !q.markSpoken(n) {
		return
	}
	q.Speak(n.Text)
}

// markSpoken reports whether n is the first speakable notification of its
// run. Runs without an id are tracked by the textComplete awaiting its final.
func (q *Queue) markSpoken(n chat.Notification) bool {
	if n.RunID == "" {
		q.mu.Lock()
		defer q.mu.Unlock()
		if n.Kind == chat.KindFinal {
			first := !q.anonPending
			q.anonPending = false
			return first
		}
		if q.anonPending {
			return false
		}
		q.anonPending = true
		return true
	}
	return q.markRun(n.RunID)
}

func (q *Queue) markRun(runID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.spoken {
		if id == runID {
			return false
		}
	}
	q.spoken[q.next] = runID
	q.next = (q.next + 1) % len(q.spoken)
	return true
}

// Speak enqueues text, dropping it when the queue is full.
func (q *Queue) Speak(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	select {
	case q.queue <- trimmed:
	default:
		q.log.Warn("tts queue full; dropping text")
	}
}

// Close stops the worker, interrupting any utterance in progress.
func (q *Queue) Close() {
	q.cancel()
	<-q.done
}
