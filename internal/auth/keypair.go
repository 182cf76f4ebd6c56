package auth

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const keyFileName = "device_key.yaml"

type keyFile struct {
	PrivateKey string `yaml:"private_key"` // base64 Ed25519 seed
	PublicKey  string `yaml:"public_key"`
	CreatedAt  int64  `yaml:"created_at"`
}

// KeyStore keeps the device keypair in dir/device_key.yaml. Missing or
// undecodable files read as empty material so a fresh key gets generated.
type KeyStore struct {
	Dir string

	mu sync.Mutex
}

func NewKeyStore(dir string) *KeyStore {
	return &KeyStore{Dir: dir}
}

func (s *KeyStore) keyPath() string {
	return filepath.Join(s.Dir, keyFileName)
}

func (s *KeyStore) KeyPair() (private, public []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.keyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read key: %w", err)
	}
	var kf keyFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, nil, nil
	}
	private, errPriv := base64.StdEncoding.DecodeString(kf.PrivateKey)
	public, errPub := base64.StdEncoding.DecodeString(kf.PublicKey)
	if errPriv != nil || errPub != nil {
		return nil, nil, nil
	}
	return private, public, nil
}

func (s *KeyStore) SetKeyPair(private, public []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(keyFile{
		PrivateKey: base64.StdEncoding.EncodeToString(private),
		PublicKey:  base64.StdEncoding.EncodeToString(public),
		CreatedAt:  time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(s.keyPath(), data, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}

// Delete removes the keypair; the next load generates a new device identity.
func (s *KeyStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.keyPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}
