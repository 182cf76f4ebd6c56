package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is ~/.clawline/config.yaml.
type Config struct {
	Active   string         `yaml:"active,omitempty"` // agent id
	Agents   []Agent        `yaml:"agents,omitempty"`
	Client   ClientConfig   `yaml:"client"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Ntfy     NtfyConfig     `yaml:"ntfy"`
	Speech   SpeechConfig   `yaml:"speech"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ClientConfig is how this device presents itself in the connect request.
type ClientConfig struct {
	ID       string   `yaml:"client_id"`
	Mode     string   `yaml:"mode"`
	Role     string   `yaml:"role"`
	Scopes   []string `yaml:"scopes,flow"`
	Platform string   `yaml:"platform,omitempty"` // default runtime.GOOS
	Locale   string   `yaml:"locale,omitempty"`
}

// GatewayConfig tunes session timing. Durations use time.ParseDuration syntax.
type GatewayConfig struct {
	RequestTimeout       string `yaml:"request_timeout,omitempty"`
	PingInterval         string `yaml:"ping_interval,omitempty"`
	ReconnectMax         string `yaml:"reconnect_max,omitempty"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts,omitempty"`
	HistoryLimit         int    `yaml:"history_limit,omitempty"`
}

type NtfyConfig struct {
	Server string `yaml:"server,omitempty"`
	Token  string `yaml:"token,omitempty"`
	Events string `yaml:"events,omitempty"` // comma-separated: pairing, reply
}

type SpeechConfig struct {
	Command string `yaml:"command,omitempty"` // e.g. "espeak-ng -v {voice}"
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			ID:     "clawline",
			Mode:   "webchat",
			Role:   "operator",
			Scopes: []string{"operator.read", "operator.write"},
		},
		Ntfy:     NtfyConfig{Server: "https://ntfy.sh", Events: "pairing,reply"},
		Database: DatabaseConfig{Path: "clawline.db"},
		Logging:  LoggingConfig{Level: "warn"},
	}
}

// Load reads config.yaml from dir and applies environment overrides. A
// missing file yields Default(). Relative database and log paths are
// resolved against dir.
func Load(dir string) (*Config, error) {
	cfg, err := read(dir)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.Database.Path = resolve(dir, cfg.Database.Path)
	cfg.Logging.File = resolve(dir, cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadForEdit reads config.yaml exactly as stored, without environment
// overrides or path resolution, so Save writes back only what the user wrote.
func LoadForEdit(dir string) (*Config, error) {
	cfg, err := read(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func read(dir string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(ConfigPath(dir))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if url := os.Getenv("CLAWLINE_GATEWAY_URL"); url != "" {
		if a, err := c.ActiveAgent(); err == nil {
			a.GatewayURL = url
		} else {
			c.Agents = append(c.Agents, Agent{ID: "env", Name: "default", GatewayURL: url, SessionKey: DefaultSessionKey})
			c.Active = "env"
		}
	}
	if level := os.Getenv("CLAWLINE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if token := os.Getenv("CLAWLINE_NTFY_TOKEN"); token != "" {
		c.Ntfy.Token = token
	}
}

// Save writes cfg to dir/config.yaml, owner-readable only.
func Save(dir string, cfg *Config) error {
	if err := EnsureHome(dir); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(dir), data, 0o600)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent %q has no id", a.Name)
		}
		if a.Name == "" {
			return fmt.Errorf("agent %s has no name", a.ID)
		}
		if a.GatewayURL == "" {
			return fmt.Errorf("agent %q has no gateway_url", a.Name)
		}
		key := strings.ToLower(a.Name)
		if seen[key] {
			return fmt.Errorf("duplicate agent name %q", a.Name)
		}
		seen[key] = true
	}
	if c.Active != "" && c.findIndex(c.Active) < 0 {
		return fmt.Errorf("active agent %q does not exist", c.Active)
	}
	if c.Client.ID == "" {
		return fmt.Errorf("client.client_id is required")
	}
	for name, d := range map[string]string{
		"gateway.request_timeout": c.Gateway.RequestTimeout,
		"gateway.ping_interval":   c.Gateway.PingInterval,
		"gateway.reconnect_max":   c.Gateway.ReconnectMax,
	} {
		if _, err := parseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Gateway.MaxReconnectAttempts < 0 {
		return fmt.Errorf("gateway.max_reconnect_attempts must not be negative")
	}
	for _, ev := range c.NtfyEvents() {
		if ev != "pairing" && ev != "reply" {
			return fmt.Errorf("ntfy.events: unknown event %q", ev)
		}
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// NtfyEvents returns the configured notification event names.
func (c *Config) NtfyEvents() []string {
	var out []string
	for _, ev := range strings.Split(c.Ntfy.Events, ",") {
		if ev = strings.ToLower(strings.TrimSpace(ev)); ev != "" {
			out = append(out, ev)
		}
	}
	return out
}

// Durations returns the parsed gateway timings; zero means default.
func (g GatewayConfig) Durations() (request, ping, reconnectMax time.Duration) {
	request, _ = parseDuration(g.RequestTimeout)
	ping, _ = parseDuration(g.PingInterval)
	reconnectMax, _ = parseDuration(g.ReconnectMax)
	return request, ping, reconnectMax
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
