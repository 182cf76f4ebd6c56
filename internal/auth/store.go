package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DeviceToken is what a gateway issued to this device after pairing.
type DeviceToken struct {
	Token    string `yaml:"device_token"`
	IssuedAt int64  `yaml:"issued_at"`
	DeviceID string `yaml:"device_id,omitempty"`
}

// TokenStore keeps one device token per agent in dir/device_tokens.yaml.
type TokenStore struct {
	Dir string

	mu sync.Mutex
}

func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{Dir: dir}
}

func (s *TokenStore) tokenPath() string {
	return filepath.Join(s.Dir, "device_tokens.yaml")
}

func (s *TokenStore) load() (map[string]DeviceToken, error) {
	data, err := os.ReadFile(s.tokenPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]DeviceToken{}, nil
		}
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	tokens := map[string]DeviceToken{}
	if err := yaml.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("parse tokens: %w", err)
	}
	return tokens, nil
}

func (s *TokenStore) save(tokens map[string]DeviceToken) error {
	data, err := yaml.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(s.tokenPath(), data, 0o600); err != nil {
		return fmt.Errorf("write tokens: %w", err)
	}
	return nil
}

// Load returns the token for agent, or nil if it has never been paired.
func (s *TokenStore) Load(agent string) (*DeviceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return nil, err
	}
	tok, ok := tokens[agent]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (s *TokenStore) Save(agent string, token DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return err
	}
	if token.IssuedAt == 0 {
		token.IssuedAt = time.Now().Unix()
	}
	tokens[agent] = token
	return s.save(tokens)
}

// Delete forgets the token for agent.
func (s *TokenStore) Delete(agent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := tokens[agent]; !ok {
		return nil
	}
	delete(tokens, agent)
	return s.save(tokens)
}

// Clear removes every stored token. Tokens are bound to the device key, so
// this goes together with an identity reset.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.tokenPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete tokens: %w", err)
	}
	return nil
}

// Agents lists agents holding a token, sorted.
func (s *TokenStore) Agents() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tokens))
	for a := range tokens {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

// For returns a view of the store bound to one agent, as needed by a
// gateway session.
func (s *TokenStore) For(agent, deviceID string) *AgentTokens {
	return &AgentTokens{store: s, agent: agent, deviceID: deviceID}
}

// AgentTokens reads and writes a single agent's token.
type AgentTokens struct {
	store    *TokenStore
	agent    string
	deviceID string
}

func (a *AgentTokens) DeviceToken() (string, error) {
	tok, err := a.store.Load(a.agent)
	if err != nil || tok == nil {
		return "", err
	}
	// a token issued to a previous key is useless after an identity reset
	if a.deviceID != "" && tok.DeviceID != "" && tok.DeviceID != a.deviceID {
		return "", nil
	}
	return tok.Token, nil
}

func (a *AgentTokens) SetDeviceToken(token string) error {
	return a.store.Save(a.agent, DeviceToken{Token: token, DeviceID: a.deviceID})
}
