package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ehrlich-b/clawline/internal/identity"
)

func (s *Session) handleEvent(ctx context.Context, gen uint64, ev *EventMessage) {
	switch ev.Event {
	case EventConnectChallenge:
		var p ChallengePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Nonce == "" {
			s.log.Warn("dropping challenge", "err", &ProtocolError{Kind: ProtocolUnexpected, Err: errors.New("challenge without nonce")})
			return
		}
		// connect waits on a response the read loop has to deliver
		go s.authenticate(ctx, gen, p)
	case EventDevicePaired:
		var p PairedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.DeviceToken == "" {
			s.log.Warn("dropping device.paired without token")
			return
		}
		s.onPaired(ctx, gen, p.DeviceToken)
	case EventChat:
		s.applyChat(gen, ev.Payload)
	default:
		s.log.Debug("ignoring event", "event", ev.Event)
	}
}

// connectParams builds the signed connect request for a challenge.
func (s *Session) connectParams(p ChallengePayload, token string) ConnectParams {
	signedAt := p.TS
	if signedAt == 0 {
		signedAt = time.Now().UnixMilli()
	}
	signed := s.id.SignChallenge(identity.Challenge{
		Nonce:      p.Nonce,
		SignedAt:   signedAt,
		ClientID:   s.cfg.ClientID,
		ClientMode: s.cfg.ClientMode,
		Role:       s.cfg.Role,
		Scopes:     s.cfg.Scopes,
		Token:      token,
	})
	return ConnectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Client: ClientInfo{
			ID:       s.cfg.ClientID,
			Version:  s.cfg.ClientVersion,
			Platform: s.cfg.Platform,
			Mode:     s.cfg.ClientMode,
		},
		Role:        s.cfg.Role,
		Scopes:      s.cfg.Scopes,
		Caps:        []string{},
		Commands:    []string{},
		Permissions: map[string]bool{},
		Auth:        AuthBlock{Token: token},
		Locale:      s.cfg.Locale,
		UserAgent:   s.cfg.UserAgent,
		Device: DeviceBlock{
			ID:        s.id.DeviceID(),
			PublicKey: s.id.PublicKeyBase64URL(),
			Signature: signed.Signature,
			SignedAt:  signed.SignedAt,
			Nonce:     signed.Nonce,
		},
	}
}

func (s *Session) authenticate(ctx context.Context, gen uint64, p ChallengePayload) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	s.log.Debug("answering challenge", "device", shortID(s.id.DeviceID()))
	resp, err := s.Request(ctx, MethodConnect, s.connectParams(p, token))
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("connect request failed", "err", err)
			s.fail(gen, err)
		}
		return
	}

	if resp.OK {
		var hello HelloPayload
		if len(resp.Payload) > 0 {
			if err := json.Unmarshal(resp.Payload, &hello); err != nil {
				s.log.Warn("hello payload", "err", &ProtocolError{Kind: ProtocolMalformed, Err: err})
			}
		}
		newToken := ""
		if hello.Auth != nil {
			newToken = hello.Auth.DeviceToken
		}
		s.becomeReady(ctx, gen, newToken)
		s.log.Info("authenticated", "device", shortID(s.id.DeviceID()))
		return
	}

	authErr := &AuthError{Code: "unknown", Message: "connection failed"}
	if resp.Error != nil {
		authErr.Code = resp.Error.Code
		if resp.Error.Message != "" {
			authErr.Message = resp.Error.Message
		}
	}
	if authErr.PairingRequired() {
		var details PairingDetails
		if len(resp.Error.Details) > 0 {
			_ = json.Unmarshal(resp.Error.Details, &details)
		}
		s.log.Info("pairing required", "request", details.RequestID)
		s.mu.Lock()
		if s.gen == gen {
			s.setStateLocked(State{Kind: StateWaitingForPairing, PairingCode: details.RequestID})
			s.events.Publish(Event{Kind: EventKindPairingRequired, PairingCode: details.RequestID})
		}
		s.mu.Unlock()
		return
	}

	s.log.Warn("connect rejected", "code", authErr.Code, "message", authErr.Message)
	s.mu.Lock()
	if s.gen == gen {
		s.lastErr = authErr
		s.setStateLocked(State{Kind: StateError, Message: authErr.Message})
	}
	s.mu.Unlock()
}

func (s *Session) onPaired(ctx context.Context, gen uint64, token string) {
	s.log.Info("device paired", "device", shortID(s.id.DeviceID()))
	if !s.becomeReady(ctx, gen, token) {
		return
	}
	s.emit(gen, Event{Kind: EventKindPaired, DeviceToken: token})
}

// becomeReady stores token when non-empty, moves to Ready and loads history
// in the background. It reports false if gen is stale.
func (s *Session) becomeReady(ctx context.Context, gen uint64, token string) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	if token != "" {
		s.token = token
	}
	s.lastErr = nil
	s.setStateLocked(State{Kind: StateReady})
	s.mu.Unlock()

	if token != "" {
		if err := s.tokens.SetDeviceToken(token); err != nil {
			s.log.Error("persist device token", "err", err)
		}
	}
	go func() {
		if err := s.fetchHistory(ctx, gen); err != nil && ctx.Err() == nil {
			s.log.Warn("fetch history", "err", err)
		}
	}()
	return true
}

func shortID(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}
