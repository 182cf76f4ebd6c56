package gateway

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/clawline/internal/chat"
)

func TestParseFrameResponse(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"res","id":"1","ok":false,"error":{"code":"pairing_required","message":"approve me","details":{"requestId":"R1"}}}`))
	require.NoError(t, err)
	require.NotNil(t, f.Response)
	assert.Nil(t, f.Event)
	assert.Equal(t, "1", f.Response.ID)

	var re *ResponseError
	require.True(t, errors.As(f.Response.Err(), &re))
	assert.Equal(t, CodePairingRequired, re.Code)

	var details PairingDetails
	require.NoError(t, json.Unmarshal(re.Details, &details))
	assert.Equal(t, "R1", details.RequestID)
}

func TestParseFrameEvent(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"event","event":"connect.challenge","payload":{"nonce":"abc","ts":1000},"seq":4}`))
	require.NoError(t, err)
	require.NotNil(t, f.Event)
	assert.Equal(t, EventConnectChallenge, f.Event.Event)
	require.NotNil(t, f.Event.Seq)
	assert.EqualValues(t, 4, *f.Event.Seq)

	var p ChallengePayload
	require.NoError(t, json.Unmarshal(f.Event.Payload, &p))
	assert.Equal(t, ChallengePayload{Nonce: "abc", TS: 1000}, p)
}

func TestParseFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind ProtocolKind
	}{
		{"not json", `{"type":`, ProtocolMalformed},
		{"no type", `{"id":"1"}`, ProtocolUnexpected},
		{"unknown type", `{"type":"hello"}`, ProtocolUnexpected},
		{"response without id", `{"type":"res","ok":true}`, ProtocolUnexpected},
		{"event without name", `{"type":"event"}`, ProtocolUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame([]byte(tt.in))
			var pe *ProtocolError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.kind, pe.Kind)
		})
	}
}

func TestResponseErrDefault(t *testing.T) {
	assert.NoError(t, (&Response{OK: true}).Err())
	assert.EqualError(t, (&Response{OK: false}).Err(), "unknown: request failed")
}

func TestConnectParamsEncoding(t *testing.T) {
	data, err := json.Marshal(ConnectParams{Caps: []string{}, Commands: []string{}, Permissions: map[string]bool{}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"caps":[]`)
	assert.Contains(t, string(data), `"commands":[]`)
	assert.Contains(t, string(data), `"permissions":{}`)
	assert.NotContains(t, string(data), `"locale"`)
}

func TestHistoryMessages(t *testing.T) {
	var p HistoryPayload
	require.NoError(t, json.Unmarshal([]byte(`{"messages":[
		{"role":"user","content":"hi","ts":1},
		{"role":"assistant","content":"HEARTBEAT_OK","ts":2},
		{"role":"assistant","content":[{"type":"text","text":"[[reply_to_current]] hello"}],"ts":3},
		{"role":"assistant","content":"MEDIA: /tmp/cat.png\nhere","ts":4},
		{"role":"user","content":"   ","ts":5},
		{"content":"no role","ts":6}
	]}`), &p))

	got := HistoryMessages(p.Messages)
	assert.Equal(t, []chat.Message{
		{Role: chat.RoleUser, Content: "hi", Timestamp: 1},
		{Role: chat.RoleAssistant, Content: "hello", Timestamp: 3},
		{Role: chat.RoleAssistant, Content: "here", Timestamp: 4, MediaPath: "/tmp/cat.png"},
		{Role: chat.RoleUser, Content: "no role", Timestamp: 6},
	}, got)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://gw.example.com/", "wss://gw.example.com"},
		{"http://localhost:18789", "ws://localhost:18789"},
		{"  wss://gw.example.com/socket// ", "wss://gw.example.com/socket"},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	for _, bad := range []string{"", "   ", "ftp://gw.example.com", "ws://", "gw.example.com"} {
		_, err := NormalizeURL(bad)
		var ce *ConfigError
		assert.True(t, errors.As(err, &ce), "%q should be rejected", bad)
	}
}
