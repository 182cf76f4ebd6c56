package gateway

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscriber capacity for session streams.
const DefaultBufferSize = 64

// Broadcaster fans values out to subscribers over bounded channels. Publish
// never blocks: a full subscriber loses its oldest queued value.
type Broadcaster[T any] struct {
	mu      sync.Mutex
	subs    map[*Subscription[T]]struct{}
	size    int
	replay  bool
	last    T
	hasLast bool
	closed  bool
}

// Subscription is one consumer of a Broadcaster.
type Subscription[T any] struct {
	ch      chan T
	b       *Broadcaster[T]
	dropped atomic.Int64
}

// NewBroadcaster creates a broadcaster. With replay set, new subscribers
// immediately receive the most recent value.
func NewBroadcaster[T any](size int, replay bool) *Broadcaster[T] {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Broadcaster[T]{
		subs:   make(map[*Subscription[T]]struct{}),
		size:   size,
		replay: replay,
	}
}

func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{ch: make(chan T, b.size), b: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	if b.replay && b.hasLast {
		s.ch <- b.last
	}
	b.subs[s] = struct{}{}
	return s
}

func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last, b.hasLast = v, true
	for s := range b.subs {
		s.offer(v)
	}
}

// Close ends every subscription.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

func (s *Subscription[T]) offer(v T) {
	select {
	case s.ch <- v:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- v:
	default:
		s.dropped.Add(1)
	}
}

// C delivers values until the subscription or broadcaster is closed.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Dropped counts values discarded because the consumer fell behind.
func (s *Subscription[T]) Dropped() int64 { return s.dropped.Load() }

func (s *Subscription[T]) Close() {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}
