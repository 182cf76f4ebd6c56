package gateway

import (
	"fmt"

	"github.com/ehrlich-b/clawline/internal/chat"
)

// StateKind is the coarse connection state.
type StateKind int

const (
	StateDisconnected StateKind = iota
	StateConnecting
	StateConnected
	StateWaitingForPairing
	StateReady
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateWaitingForPairing:
		return "waiting_for_pairing"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(k))
	}
}

// State is the session's current connection state.
type State struct {
	Kind        StateKind
	PairingCode string // WaitingForPairing only, may be empty
	Message     string // Error only
}

func (s State) String() string {
	switch {
	case s.Kind == StateError && s.Message != "":
		return fmt.Sprintf("error: %s", s.Message)
	case s.Kind == StateWaitingForPairing && s.PairingCode != "":
		return fmt.Sprintf("waiting_for_pairing (%s)", s.PairingCode)
	default:
		return s.Kind.String()
	}
}

// EventKind classifies session events.
type EventKind string

const (
	EventKindChat            EventKind = "chat"
	EventKindPaired          EventKind = "paired"
	EventKindPairingRequired EventKind = "pairing_required"
)

// Event is delivered on the session event stream.
type Event struct {
	Kind        EventKind
	Chat        chat.Notification // EventKindChat
	DeviceToken string            // EventKindPaired
	PairingCode string            // EventKindPairingRequired
}
