// Package identity owns the device signing keypair used to answer gateway
// connect challenges.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PayloadVersion tags the canonical challenge payload layout.
const PayloadVersion = "v2"

// KeyStore persists raw key material. Private is the 32-byte Ed25519 seed.
type KeyStore interface {
	KeyPair() (private, public []byte, err error)
	SetKeyPair(private, public []byte) error
}

// Identity is a device keypair plus its derived id. Read-only after creation.
type Identity struct {
	priv     ed25519.PrivateKey
	pub      ed25519.PublicKey
	deviceID string
}

// SignedChallenge is the per-handshake proof sent in the connect device block.
type SignedChallenge struct {
	Signature string // base64url, no padding
	SignedAt  int64  // unix millis, echoed from the challenge
	Nonce     string
}

// Challenge holds every field that goes into the signed payload.
type Challenge struct {
	Nonce      string
	SignedAt   int64
	ClientID   string
	ClientMode string
	Role       string
	Scopes     []string
	Token      string // empty when the device has no token yet
}

// LoadOrCreate loads the keypair from ks, generating and persisting a new one
// when the stored material is missing or malformed.
func LoadOrCreate(ks KeyStore) (*Identity, error) {
	return loadOrCreate(ks, rand.Reader)
}

func loadOrCreate(ks KeyStore, entropy io.Reader) (*Identity, error) {
	seed, pub, err := ks.KeyPair()
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	if id, ok := fromStored(seed, pub); ok {
		return id, nil
	}

	pub, priv, err := ed25519.GenerateKey(entropy)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := ks.SetKeyPair(priv.Seed(), pub); err != nil {
		return nil, fmt.Errorf("save keypair: %w", err)
	}
	return newIdentity(priv), nil
}

// FromSeed builds an identity from a 32-byte seed without touching storage.
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return newIdentity(ed25519.NewKeyFromSeed(seed)), nil
}

func fromStored(seed, pub []byte) (*Identity, bool) {
	if len(seed) != ed25519.SeedSize || len(pub) != ed25519.PublicKeySize {
		return nil, false
	}
	priv := ed25519.NewKeyFromSeed(seed)
	// a seed that doesn't produce the stored public key is treated as corrupt
	if !bytes.Equal(priv.Public().(ed25519.PublicKey), pub) {
		return nil, false
	}
	return newIdentity(priv), true
}

func newIdentity(priv ed25519.PrivateKey) *Identity {
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{priv: priv, pub: pub, deviceID: DeviceID(pub)}
}

// DeviceID is the lowercase hex SHA-256 of the raw public key.
func DeviceID(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

func (id *Identity) DeviceID() string { return id.deviceID }

// PublicKey returns a copy of the raw 32-byte public key.
func (id *Identity) PublicKey() []byte {
	return bytes.Clone(id.pub)
}

// PublicKeyBase64URL is the public key as sent in the connect device block.
func (id *Identity) PublicKeyBase64URL() string {
	return base64.RawURLEncoding.EncodeToString(id.pub)
}

// Payload builds the canonical pipe-joined string that gets signed.
func (id *Identity) Payload(c Challenge) string {
	return strings.Join([]string{
		PayloadVersion,
		id.deviceID,
		c.ClientID,
		c.ClientMode,
		c.Role,
		strings.Join(c.Scopes, ","),
		strconv.FormatInt(c.SignedAt, 10),
		c.Token,
		c.Nonce,
	}, "|")
}

// SignChallenge signs the canonical payload. Ed25519 is deterministic, so
// identical inputs always produce the identical signature.
func (id *Identity) SignChallenge(c Challenge) SignedChallenge {
	sig := ed25519.Sign(id.priv, []byte(id.Payload(c)))
	return SignedChallenge{
		Signature: base64.RawURLEncoding.EncodeToString(sig),
		SignedAt:  c.SignedAt,
		Nonce:     c.Nonce,
	}
}

// Verify checks a base64url signature over payload against this identity.
func (id *Identity) Verify(payload, signature string) bool {
	return VerifyWith(id.pub, payload, signature)
}

// VerifyWith checks a base64url signature against an arbitrary public key.
func VerifyWith(pub []byte, payload, signature string) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(payload), sig)
}
