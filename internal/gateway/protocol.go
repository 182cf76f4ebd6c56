package gateway

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is advertised as both min and max in the connect request.
const ProtocolVersion = 3

// Envelope types.
const (
	TypeRequest  = "req"
	TypeResponse = "res"
	TypeEvent    = "event"
)

// Methods the client calls.
const (
	MethodConnect     = "connect"
	MethodChatSend    = "chat.send"
	MethodChatHistory = "chat.history"
	MethodPing        = "ping"
)

// Events the gateway pushes.
const (
	EventConnectChallenge = "connect.challenge"
	EventDevicePaired     = "device.paired"
	EventChat             = "chat"
)

// CodePairingRequired is the connect error code for an unpaired device.
const CodePairingRequired = "pairing_required"

// Envelope wraps every WebSocket message with a type field for routing.
type Envelope struct {
	Type string `json:"type"`
}

// Request is an outbound RPC call.
type Request struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response answers the Request with the same ID.
type Response struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the error block of a failed response.
type ResponseError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Err returns nil for ok responses and a *ResponseError otherwise.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	if r.Error != nil {
		return r.Error
	}
	return &ResponseError{Code: "unknown", Message: "request failed"}
}

// EventMessage is a server-pushed event.
type EventMessage struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     *int64          `json:"seq,omitempty"`
}

// Frame is a parsed inbound message: exactly one of Response or Event is set.
type Frame struct {
	Type     string
	Response *Response
	Event    *EventMessage
}

// rawFrame is the union of every inbound field.
type rawFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload"`
	Error   *ResponseError  `json:"error"`
	Event   string          `json:"event"`
	Seq     *int64          `json:"seq"`
}

// ParseFrame decodes one inbound message. Invalid JSON yields a
// ProtocolMalformed error; valid JSON of a shape the client does not handle
// yields ProtocolUnexpected.
func ParseFrame(data []byte) (Frame, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, &ProtocolError{Kind: ProtocolMalformed, Err: err}
	}
	switch raw.Type {
	case TypeResponse:
		if raw.ID == "" {
			return Frame{}, unexpected("response without id")
		}
		return Frame{Type: raw.Type, Response: &Response{
			Type:    raw.Type,
			ID:      raw.ID,
			OK:      raw.OK,
			Payload: raw.Payload,
			Error:   raw.Error,
		}}, nil
	case TypeEvent:
		if raw.Event == "" {
			return Frame{}, unexpected("event without name")
		}
		return Frame{Type: raw.Type, Event: &EventMessage{
			Type:    raw.Type,
			Event:   raw.Event,
			Payload: raw.Payload,
			Seq:     raw.Seq,
		}}, nil
	case "":
		return Frame{}, unexpected("missing type")
	default:
		return Frame{}, unexpected(fmt.Sprintf("unhandled type %q", raw.Type))
	}
}

func unexpected(msg string) error {
	return &ProtocolError{Kind: ProtocolUnexpected, Err: fmt.Errorf("%s", msg)}
}

// ChallengePayload is the body of connect.challenge.
type ChallengePayload struct {
	Nonce string `json:"nonce"`
	TS    int64  `json:"ts"`
}

// ConnectParams is sent as the "connect" request.
type ConnectParams struct {
	MinProtocol int             `json:"minProtocol"`
	MaxProtocol int             `json:"maxProtocol"`
	Client      ClientInfo      `json:"client"`
	Role        string          `json:"role"`
	Scopes      []string        `json:"scopes"`
	Caps        []string        `json:"caps"`
	Commands    []string        `json:"commands"`
	Permissions map[string]bool `json:"permissions"`
	Auth        AuthBlock       `json:"auth"`
	Locale      string          `json:"locale,omitempty"`
	UserAgent   string          `json:"userAgent,omitempty"`
	Device      DeviceBlock     `json:"device"`
}

type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

type AuthBlock struct {
	Token string `json:"token"`
}

// DeviceBlock proves possession of the device key.
type DeviceBlock struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"` // base64url, no padding
	Signature string `json:"signature"` // base64url, no padding
	SignedAt  int64  `json:"signedAt"`
	Nonce     string `json:"nonce"`
}

// HelloPayload is the payload of a successful connect response.
type HelloPayload struct {
	Auth *struct {
		DeviceToken string `json:"deviceToken"`
	} `json:"auth,omitempty"`
}

// PairingDetails may accompany a pairing_required error.
type PairingDetails struct {
	RequestID string `json:"requestId"`
}

// PairedPayload is the body of device.paired.
type PairedPayload struct {
	DeviceToken string `json:"deviceToken"`
}

type ChatSendParams struct {
	SessionKey     string `json:"sessionKey"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type ChatHistoryParams struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit"`
}

// HistoryPayload is the payload of a chat.history response.
type HistoryPayload struct {
	Messages []HistoryEntry `json:"messages"`
}

// HistoryEntry content is either a string or an array of content blocks.
type HistoryEntry struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	TS      int64           `json:"ts"`
}
