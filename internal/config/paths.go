package config

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the configuration directory.
const HomeEnv = "CLAWLINE_HOME"

// Home returns $CLAWLINE_HOME, or ~/.clawline.
func Home() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".clawline"), nil
}

// EnsureHome creates dir with owner-only permissions; it holds key material.
func EnsureHome(dir string) error {
	return os.MkdirAll(dir, 0o700)
}

// ConfigPath is the config file inside dir.
func ConfigPath(dir string) string {
	return filepath.Join(dir, "config.yaml")
}

// resolve makes p absolute relative to dir, leaving absolute paths alone.
func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
