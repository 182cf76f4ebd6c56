package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ehrlich-b/clawline/internal/chat"
	"github.com/ehrlich-b/clawline/internal/config"
	"github.com/ehrlich-b/clawline/internal/gateway"
	"github.com/ehrlich-b/clawline/internal/logger"
	"github.com/ehrlich-b/clawline/internal/ntfy"
	"github.com/ehrlich-b/clawline/internal/speech"
	"github.com/ehrlich-b/clawline/internal/store"
)

const transcriptFlushDelay = 500 * time.Millisecond

func (a *app) newSession(agent *config.Agent, historyLimit int) (*gateway.Session, error) {
	request, ping, reconnectMax := a.cfg.Gateway.Durations()
	if historyLimit <= 0 {
		historyLimit = a.cfg.Gateway.HistoryLimit
	}
	cfg := gateway.Config{
		URL:                  agent.GatewayURL,
		ClientID:             a.cfg.Client.ID,
		ClientVersion:        version,
		ClientMode:           a.cfg.Client.Mode,
		Platform:             a.cfg.Client.Platform,
		Role:                 a.cfg.Client.Role,
		Scopes:               a.cfg.Client.Scopes,
		Locale:               a.cfg.Client.Locale,
		SessionKey:           agent.SessionKey,
		HistoryLimit:         historyLimit,
		RequestTimeout:       request,
		PingInterval:         ping,
		ReconnectMax:         reconnectMax,
		MaxReconnectAttempts: a.cfg.Gateway.MaxReconnectAttempts,
	}
	log := logger.Log.With("agent", agent.Name)
	return gateway.New(cfg, a.id, a.tokens.For(agent.ID, a.id.DeviceID()), gateway.WithLogger(log))
}

// notifier builds the ntfy client for agent, or nil when it has no topic.
func (a *app) notifier(agent *config.Agent) *ntfy.Client {
	if agent.NtfyTopic == "" {
		return nil
	}
	return ntfy.New(a.cfg.Ntfy.Server, agent.NtfyTopic, a.cfg.Ntfy.Token, a.cfg.Ntfy.Events)
}

// sinks fans session output into the transcript cache, push notifications
// and speech. Every sink is optional.
type sinks struct {
	agent  *config.Agent
	store  *store.Store
	ntfy   *ntfy.Client
	speech *speech.Queue
	log    *slog.Logger
}

// run consumes the session streams until ctx is done, then flushes the
// transcript one last time.
func (k *sinks) run(ctx context.Context, sess *gateway.Session) {
	states := sess.States()
	events := sess.Events()
	lists := sess.MessageLists()
	defer states.Close()
	defer events.Close()
	defer lists.Close()

	var pending []chat.Message
	dirty := false
	flush := time.NewTimer(time.Hour)
	flush.Stop()

	save := func() {
		if !dirty || k.store == nil {
			return
		}
		if err := k.store.ReplaceTranscript(k.agent.ID, pending); err != nil {
			k.log.Warn("cache transcript", "err", err)
		}
		dirty = false
	}
	defer save()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states.C():
			if !ok {
				return
			}
			k.recordState(st)
		case ev, ok := <-events.C():
			if !ok {
				return
			}
			k.handleEvent(ctx, ev)
		case msgs, ok := <-lists.C():
			if !ok {
				return
			}
			pending, dirty = msgs, true
			flush.Reset(transcriptFlushDelay)
		case <-flush.C:
			save()
		}
	}
}

func (k *sinks) recordState(st gateway.State) {
	if k.store == nil {
		return
	}
	var detail *string
	switch {
	case st.PairingCode != "":
		detail = &st.PairingCode
	case st.Message != "":
		detail = &st.Message
	}
	if err := k.store.AppendLog(k.agent.ID, st.Kind.String(), detail); err != nil {
		k.log.Warn("session log", "err", err)
	}
}

func (k *sinks) handleEvent(ctx context.Context, ev gateway.Event) {
	switch ev.Kind {
	case gateway.EventKindPairingRequired:
		if k.ntfy != nil {
			go k.push(func() error { return k.ntfy.SendPairingRequired(ctx, k.agent.Name, ev.PairingCode) })
		}
	case gateway.EventKindChat:
		if k.speech != nil {
			k.speech.Handle(ev.Chat)
		}
		if ev.Chat.Kind == chat.KindFinal && k.ntfy != nil {
			go k.push(func() error { return k.ntfy.SendReply(ctx, k.agent.Name, ev.Chat.Text) })
		}
	}
}

func (k *sinks) push(send func() error) {
	if err := send(); err != nil && !errors.Is(err, ntfy.ErrThrottled) && !errors.Is(err, context.Canceled) {
		k.log.Warn("push notification", "err", err)
	}
}

// waitReady blocks until the session is Ready. Pairing prompts are written
// to out; a rejected connect is returned as an error, transport failures
// are left to the reconnect loop.
func waitReady(ctx context.Context, sess *gateway.Session, out io.Writer) error {
	sub := sess.States()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			if err := sess.LastError(); err != nil {
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			}
			return ctx.Err()
		case st, ok := <-sub.C():
			if !ok {
				return gateway.ErrClosed
			}
			switch st.Kind {
			case gateway.StateReady:
				return nil
			case gateway.StateWaitingForPairing:
				fmt.Fprintln(out, pairingPrompt(st.PairingCode, sess))
			case gateway.StateError:
				var authErr *gateway.AuthError
				if errors.As(sess.LastError(), &authErr) {
					return authErr
				}
			}
		}
	}
}

func pairingPrompt(code string, sess *gateway.Session) string {
	id := sess.Identity().DeviceID()
	if code != "" {
		return fmt.Sprintf("pairing required: approve request %s for device %s on the gateway", code, id[:16])
	}
	return fmt.Sprintf("pairing required: approve device %s on the gateway", id[:16])
}
