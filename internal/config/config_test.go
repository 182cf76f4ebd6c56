package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.ID != "clawline" || cfg.Client.Mode != "webchat" || cfg.Client.Role != "operator" {
		t.Errorf("client = %+v", cfg.Client)
	}
	if len(cfg.Client.Scopes) != 2 {
		t.Errorf("scopes = %v", cfg.Client.Scopes)
	}
	if cfg.Database.Path != filepath.Join(dir, "clawline.db") {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if len(cfg.Agents) != 0 {
		t.Errorf("agents = %v", cfg.Agents)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	if _, err := cfg.AddAgent(Agent{Name: "home", GatewayURL: "https://gw.home.lan", NtfyTopic: "claw-home"}); err != nil {
		t.Fatal(err)
	}
	cfg.Gateway.PingInterval = "15s"
	if err := Save(dir, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(ConfigPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config mode = %v", info.Mode().Perm())
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	a, err := loaded.ActiveAgent()
	if err != nil {
		t.Fatal(err)
	}
	if a.Name != "home" || a.SessionKey != "main" || a.NtfyTopic != "claw-home" {
		t.Errorf("agent = %+v", a)
	}
	_, ping, _ := loaded.Gateway.Durations()
	if ping != 15*time.Second {
		t.Errorf("ping = %v", ping)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLAWLINE_GATEWAY_URL", "wss://env.example.com")
	t.Setenv("CLAWLINE_LOG_LEVEL", "debug")
	t.Setenv("CLAWLINE_NTFY_TOKEN", "tk_secret")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	a, err := cfg.ActiveAgent()
	if err != nil {
		t.Fatal(err)
	}
	if a.GatewayURL != "wss://env.example.com" {
		t.Errorf("gateway url = %q", a.GatewayURL)
	}
	if cfg.Logging.Level != "debug" || cfg.Ntfy.Token != "tk_secret" {
		t.Errorf("logging=%+v ntfy=%+v", cfg.Logging, cfg.Ntfy)
	}

	// edits never see the override
	edit, err := LoadForEdit(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(edit.Agents) != 0 {
		t.Errorf("env agent leaked into editable config: %+v", edit.Agents)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad duration", func(c *Config) { c.Gateway.RequestTimeout = "soon" }, "gateway.request_timeout"},
		{"negative duration", func(c *Config) { c.Gateway.PingInterval = "-1s" }, "gateway.ping_interval"},
		{"unknown ntfy event", func(c *Config) { c.Ntfy.Events = "pairing,typing" }, "typing"},
		{"dangling active", func(c *Config) { c.Active = "nope" }, "active agent"},
		{"duplicate names", func(c *Config) {
			c.Agents = []Agent{{ID: "1", Name: "a", GatewayURL: "ws://x"}, {ID: "2", Name: "A", GatewayURL: "ws://y"}}
		}, "duplicate"},
		{"no client id", func(c *Config) { c.Client.ID = "" }, "client_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(ConfigPath(dir), []byte("agents: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestHomeEnv(t *testing.T) {
	t.Setenv(HomeEnv, "/tmp/claw-test")
	dir, err := Home()
	if err != nil || dir != "/tmp/claw-test" {
		t.Errorf("Home() = %q, %v", dir, err)
	}
}
