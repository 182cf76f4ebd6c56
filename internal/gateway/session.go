// Package gateway is the client side of the agent gateway protocol: a single
// websocket carrying signed device authentication, correlated requests, and
// pushed chat events, with automatic reconnection.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/clawline/internal/chat"
	"github.com/ehrlich-b/clawline/internal/identity"
)

const (
	DefaultRequestTimeout       = 30 * time.Second
	DefaultPingInterval         = 10 * time.Second
	DefaultReconnectBase        = 1 * time.Second
	DefaultReconnectMax         = 60 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultHistoryLimit         = 50
	DefaultSessionKey           = "main"
)

// TokenStore persists the device token issued by the gateway.
type TokenStore interface {
	DeviceToken() (string, error)
	SetDeviceToken(token string) error
}

// Config describes one gateway endpoint and how this client presents itself.
type Config struct {
	URL string // http(s) or ws(s); http is rewritten to ws

	ClientID      string
	ClientVersion string
	ClientMode    string
	Platform      string
	Role          string
	Scopes        []string
	Locale        string
	UserAgent     string

	SessionKey   string
	HistoryLimit int

	RequestTimeout       time.Duration
	PingInterval         time.Duration
	ReconnectBase        time.Duration
	ReconnectMax         time.Duration
	MaxReconnectAttempts int
	EventBuffer          int
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "clawline"
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "dev"
	}
	if c.ClientMode == "" {
		c.ClientMode = "webchat"
	}
	if c.Platform == "" {
		c.Platform = runtime.GOOS
	}
	if c.Role == "" {
		c.Role = "operator"
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"operator.read", "operator.write"}
	}
	if c.UserAgent == "" {
		c.UserAgent = c.ClientID + "/" + c.ClientVersion
	}
	if c.SessionKey == "" {
		c.SessionKey = DefaultSessionKey
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = DefaultReconnectBase
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = DefaultReconnectMax
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultBufferSize
	}
}

// NormalizeURL rewrites an http(s) gateway address to ws(s) and validates it.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &ConfigError{Field: "url", Reason: "missing gateway address"}
	}
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	s = strings.TrimRight(s, "/")
	u, err := url.Parse(s)
	if err != nil {
		return "", &ConfigError{Field: "url", Reason: err.Error()}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", &ConfigError{Field: "url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return "", &ConfigError{Field: "url", Reason: "missing host"}
	}
	return s, nil
}

// Option customizes a Session.
type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithDialer replaces the websocket dialer, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// Session owns one gateway socket and all state derived from it.
type Session struct {
	cfg    Config
	url    string
	id     *identity.Identity
	tokens TokenStore
	dialer Dialer
	log    *slog.Logger

	pending *pendingTable
	states  *Broadcaster[State]
	events  *Broadcaster[Event]
	lists   *Broadcaster[[]chat.Message]

	// mu guards everything below. gen increments on Connect, Disconnect and
	// whenever a socket is attached or released, so work started on one
	// socket may not mutate state once that socket is gone.
	mu       sync.Mutex
	gen      uint64
	state    State
	lastErr  error
	conn     Conn
	token    string
	cancel   context.CancelFunc
	done     chan struct{}
	backoff  *Backoff
	messages []chat.Message
	asm      *chat.Assembler
	closed   bool
}

// New validates cfg and builds a disconnected session. It never dials.
func New(cfg Config, id *identity.Identity, tokens TokenStore, opts ...Option) (*Session, error) {
	u, err := NormalizeURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, &ConfigError{Field: "identity", Reason: "required"}
	}
	if tokens == nil {
		return nil, &ConfigError{Field: "tokens", Reason: "required"}
	}
	cfg.applyDefaults()

	s := &Session{
		cfg:     cfg,
		url:     u,
		id:      id,
		tokens:  tokens,
		dialer:  &WSDialer{},
		log:     slog.Default(),
		pending: newPendingTable(),
		states:  NewBroadcaster[State](cfg.EventBuffer, true),
		events:  NewBroadcaster[Event](cfg.EventBuffer, false),
		lists:   NewBroadcaster[[]chat.Message](cfg.EventBuffer, true),
		backoff: NewBackoff(cfg.ReconnectBase, cfg.ReconnectMax),
		asm:     chat.NewAssembler(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "gateway")
	s.states.Publish(s.state)
	return s, nil
}

// URL is the normalized websocket address.
func (s *Session) URL() string { return s.url }

// Identity is the device identity used to sign challenges.
func (s *Session) Identity() *identity.Identity { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError is the cause of the most recent transition to Error.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Messages returns a snapshot of the displayable message list.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// DeviceToken is the token currently held, empty before pairing.
func (s *Session) DeviceToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// States streams connection states; the current state is replayed first.
func (s *Session) States() *Subscription[State] { return s.states.Subscribe() }

// Events streams chat notifications and pairing events.
func (s *Session) Events() *Subscription[Event] { return s.events.Subscribe() }

// MessageLists streams message-list snapshots; the current list is replayed first.
func (s *Session) MessageLists() *Subscription[[]chat.Message] { return s.lists.Subscribe() }

// Connect starts connecting in the background. It is a no-op while a
// connection is being established or is live. Cancelling ctx has the same
// effect as Disconnect.
func (s *Session) Connect(ctx context.Context) error {
	token, err := s.tokens.DeviceToken()
	if err != nil {
		s.log.Warn("load device token", "err", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.cancel != nil {
		switch s.state.Kind {
		case StateConnecting, StateConnected, StateWaitingForPairing, StateReady:
			s.mu.Unlock()
			return nil
		}
	}
	prevCancel, prevDone := s.cancel, s.done
	s.gen++
	gen := s.gen
	if token != "" {
		s.token = token
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.backoff.Reset()
	s.setStateLocked(State{Kind: StateConnecting})
	s.mu.Unlock()

	// a previous run still backing off is superseded
	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	go s.run(runCtx, gen, done)
	return nil
}

// Disconnect tears the connection down and stops reconnecting. Requests
// already in flight are not failed; they expire through their own timeouts.
func (s *Session) Disconnect() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.gen++
	s.cancel, s.done = nil, nil
	s.asm.Reset()
	s.setStateLocked(State{Kind: StateDisconnected})
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Close disconnects and ends every subscription. The session cannot be reused.
func (s *Session) Close() {
	s.Disconnect()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.states.Close()
	s.events.Close()
	s.lists.Close()
}

func (s *Session) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	for {
		var err error
		gen, err = s.connectAndServe(ctx, gen)
		if ctx.Err() != nil {
			s.setState(gen, State{Kind: StateDisconnected})
			return
		}
		if err == nil {
			s.log.Info("gateway closed the connection")
			s.setState(gen, State{Kind: StateDisconnected})
			return
		}

		s.log.Warn("gateway connection failed", "err", err)
		s.fail(gen, err)

		s.mu.Lock()
		if s.backoff.Attempt() >= s.cfg.MaxReconnectAttempts {
			s.mu.Unlock()
			s.log.Error("reconnect attempts exhausted", "attempts", s.cfg.MaxReconnectAttempts)
			return
		}
		delay := s.backoff.Next()
		attempt := s.backoff.Attempt()
		s.mu.Unlock()

		s.log.Info("reconnecting", "in", delay, "attempt", attempt)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			s.setState(gen, State{Kind: StateDisconnected})
			return
		case <-t.C:
		}
		s.setState(gen, State{Kind: StateConnecting})
	}
}

// connectAndServe dials and reads until the socket ends. A nil error means
// the peer closed normally. The socket runs under its own generation and
// the returned one, current once the socket is released, is what the
// caller continues with.
func (s *Session) connectAndServe(ctx context.Context, gen uint64) (next uint64, err error) {
	s.log.Debug("dialing", "url", s.url)
	conn, err := s.dialer.Dial(ctx, s.url)
	if err != nil {
		return gen, &TransportError{Op: "dial", Err: err}
	}

	s.mu.Lock()
	if s.gen != gen || ctx.Err() != nil {
		s.mu.Unlock()
		conn.Close(StatusNormalClosure, "")
		return gen, ctx.Err()
	}
	s.gen++
	sockGen := s.gen
	s.conn = conn
	s.backoff.Reset()
	s.setStateLocked(State{Kind: StateConnected})
	s.mu.Unlock()

	var pings sync.WaitGroup
	defer func() {
		pings.Wait()
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		next = sockGen
		if s.gen == sockGen {
			s.gen++
			next = s.gen
		}
		s.mu.Unlock()
	}()

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	pings.Add(1)
	go func() {
		defer pings.Done()
		s.pingLoop(pingCtx)
	}()

	// cancellation stops the ping loop, then closes the socket cleanly
	stop := context.AfterFunc(ctx, func() {
		pings.Wait()
		conn.Close(StatusNormalClosure, "client disconnect")
	})
	defer stop()

	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			var ce *CloseError
			if errors.As(err, &ce) && ce.Normal() {
				return sockGen, nil
			}
			conn.Close(StatusNormalClosure, "")
			return sockGen, &TransportError{Op: "read", Err: err}
		}
		s.handleMessage(ctx, sockGen, data)
	}
}

func (s *Session) handleMessage(ctx context.Context, gen uint64, data []byte) {
	frame, err := ParseFrame(data)
	if err != nil {
		s.log.Warn("dropping inbound message", "err", err)
		return
	}
	switch {
	case frame.Response != nil:
		if !s.pending.resolve(frame.Response) {
			s.log.Debug("response for unknown request", "id", frame.Response.ID)
		}
	case frame.Event != nil:
		s.handleEvent(ctx, gen, frame.Event)
	}
}

// Request sends method with params and waits for the correlated response,
// up to the configured request timeout.
func (s *Session) Request(ctx context.Context, method string, params any) (*Response, error) {
	if params == nil {
		params = struct{}{}
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}
	id := uuid.NewString()
	data, err := json.Marshal(Request{Type: TypeRequest, ID: id, Method: method, Params: rawParams})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	ch, err := s.pending.add(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.pending.remove(id)
		return nil, &TransportError{Op: "send", Err: ErrNotConnected}
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	err = conn.Write(writeCtx, data)
	cancel()
	if err != nil {
		s.pending.remove(id)
		return nil, &TransportError{Op: "send", Err: err}
	}
	s.log.Debug("request sent", "method", method, "id", id)

	timer := time.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		s.pending.remove(id)
		return nil, &TimeoutError{Method: method, ID: id}
	case <-ctx.Done():
		s.pending.remove(id)
		return nil, ctx.Err()
	}
}

func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Request(ctx, MethodPing, nil); err != nil && ctx.Err() == nil {
				s.log.Warn("ping failed", "err", err)
			}
		}
	}
}

// setState transitions only if gen is still current.
func (s *Session) setState(gen uint64, st State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.setStateLocked(st)
	return true
}

func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.lastErr = err
	s.setStateLocked(State{Kind: StateError, Message: err.Error()})
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.log.Info("state", "from", s.state.String(), "to", st.String())
	s.state = st
	s.states.Publish(st)
}

// emit publishes ev if gen is still current.
func (s *Session) emit(gen uint64, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.events.Publish(ev)
}

func (s *Session) setMessagesLocked(msgs []chat.Message) {
	s.messages = msgs
	s.lists.Publish(slices.Clone(msgs))
}
