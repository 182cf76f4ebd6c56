package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a request is issued with no open socket.
	ErrNotConnected = errors.New("gateway: not connected")
	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("gateway: session closed")
	// ErrDuplicateID means a request id is already pending.
	ErrDuplicateID = errors.New("gateway: duplicate request id")
)

// TransportError wraps socket open/send/read failures. These move the
// session to Error and trigger reconnection.
type TransportError struct {
	Op  string // "dial", "send", "read"
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("gateway %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolKind distinguishes unparseable input from unexpected shapes.
type ProtocolKind int

const (
	ProtocolMalformed ProtocolKind = iota
	ProtocolUnexpected
)

func (k ProtocolKind) String() string {
	if k == ProtocolMalformed {
		return "malformed"
	}
	return "unexpected"
}

// ProtocolError is a single bad inbound message. It is logged and dropped.
type ProtocolError struct {
	Kind ProtocolKind
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("gateway protocol (%s): %v", e.Kind, e.Err)
}
func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthError is a rejected connect request.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "gateway auth: " + e.Code
	}
	return fmt.Sprintf("gateway auth: %s (%s)", e.Message, e.Code)
}

// PairingRequired reports whether the device must be approved first.
func (e *AuthError) PairingRequired() bool { return e.Code == CodePairingRequired }

// TimeoutError means no response arrived for a request in time. It only
// affects the caller of that request.
type TimeoutError struct {
	Method string
	ID     string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("gateway: %s request %s timed out", e.Method, e.ID)
}

// ConfigError rejects a session before any connection attempt.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("gateway config: %s: %s", e.Field, e.Reason)
}
