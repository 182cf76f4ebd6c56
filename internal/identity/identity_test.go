package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKeys struct {
	priv, pub []byte
	saves     int
	loadErr   error
}

func (m *memKeys) KeyPair() ([]byte, []byte, error) { return m.priv, m.pub, m.loadErr }

func (m *memKeys) SetKeyPair(priv, pub []byte) error {
	m.priv, m.pub = bytes.Clone(priv), bytes.Clone(pub)
	m.saves++
	return nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func testChallenge() Challenge {
	return Challenge{
		Nonce:      "abc",
		SignedAt:   1000,
		ClientID:   "clawline",
		ClientMode: "webchat",
		Role:       "operator",
		Scopes:     []string{"operator.read", "operator.write"},
	}
}

func TestLoadOrCreateGeneratesAndPersists(t *testing.T) {
	ks := &memKeys{}
	id, err := LoadOrCreate(ks)
	require.NoError(t, err)
	assert.Equal(t, 1, ks.saves)
	assert.Len(t, ks.priv, 32)
	assert.Len(t, ks.pub, 32)

	again, err := LoadOrCreate(ks)
	require.NoError(t, err)
	assert.Equal(t, 1, ks.saves, "stored key should be reused")
	assert.Equal(t, id.DeviceID(), again.DeviceID())
}

func TestLoadOrCreateRegeneratesMalformed(t *testing.T) {
	ks := &memKeys{priv: []byte("short"), pub: make([]byte, 32)}
	_, err := LoadOrCreate(ks)
	require.NoError(t, err)
	assert.Equal(t, 1, ks.saves)
	assert.Len(t, ks.priv, 32)
}

func TestLoadOrCreateRegeneratesMismatchedPair(t *testing.T) {
	a, err := FromSeed(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	ks := &memKeys{priv: bytes.Repeat([]byte{2}, 32), pub: a.PublicKey()}
	id, err := LoadOrCreate(ks)
	require.NoError(t, err)
	assert.NotEqual(t, a.DeviceID(), id.DeviceID())
	assert.Equal(t, 1, ks.saves)
}

func TestLoadOrCreateEntropyFailure(t *testing.T) {
	_, err := loadOrCreate(&memKeys{}, failingReader{})
	require.Error(t, err)
}

func TestLoadOrCreateStoreFailure(t *testing.T) {
	_, err := LoadOrCreate(&memKeys{loadErr: errors.New("locked")})
	require.Error(t, err)
}

func TestDeviceID(t *testing.T) {
	id, err := FromSeed(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	sum := sha256.Sum256(id.PublicKey())
	assert.Equal(t, hex.EncodeToString(sum[:]), id.DeviceID())
	assert.Len(t, id.DeviceID(), 64)
}

func TestPayload(t *testing.T) {
	id, err := FromSeed(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	want := "v2|" + id.DeviceID() + "|clawline|webchat|operator|operator.read,operator.write|1000||abc"
	assert.Equal(t, want, id.Payload(testChallenge()))

	c := testChallenge()
	c.Token = "tok"
	assert.Equal(t, "v2|"+id.DeviceID()+"|clawline|webchat|operator|operator.read,operator.write|1000|tok|abc", id.Payload(c))
}

func TestSignChallengeDeterministic(t *testing.T) {
	id, err := FromSeed(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	a := id.SignChallenge(testChallenge())
	b := id.SignChallenge(testChallenge())
	assert.Equal(t, a, b)
	assert.Equal(t, int64(1000), a.SignedAt)
	assert.Equal(t, "abc", a.Nonce)
	assert.NotContains(t, a.Signature, "=")

	raw, err := base64.RawURLEncoding.DecodeString(a.Signature)
	require.NoError(t, err)
	assert.Len(t, raw, 64)

	assert.True(t, id.Verify(id.Payload(testChallenge()), a.Signature))
	assert.True(t, VerifyWith(id.PublicKey(), id.Payload(testChallenge()), a.Signature))
}

func TestSignChallengeBindsEveryField(t *testing.T) {
	id, err := FromSeed(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	sig := id.SignChallenge(testChallenge()).Signature

	c := testChallenge()
	c.Nonce = "abd"
	assert.False(t, id.Verify(id.Payload(c), sig))

	c = testChallenge()
	c.Token = "x"
	assert.False(t, id.Verify(id.Payload(c), sig))
}

func TestPublicKeyBase64URL(t *testing.T) {
	id, err := FromSeed(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(id.PublicKeyBase64URL())
	require.NoError(t, err)
	assert.Equal(t, id.PublicKey(), raw)
}

func TestFromSeedRejectsBadLength(t *testing.T) {
	_, err := FromSeed([]byte{1, 2, 3})
	assert.Error(t, err)
}
