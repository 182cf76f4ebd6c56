package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const DefaultSessionKey = "main"

// Agent is one remote agent reachable through a gateway.
type Agent struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	GatewayURL string `yaml:"gateway_url"`
	SessionKey string `yaml:"session_key,omitempty"`
	NtfyTopic  string `yaml:"ntfy_topic,omitempty"`
	Voice      string `yaml:"voice,omitempty"`
}

// AddAgent assigns an id, fills defaults and appends a. The first agent
// added becomes active.
func (c *Config) AddAgent(a Agent) (*Agent, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if a.GatewayURL == "" {
		return nil, fmt.Errorf("gateway url is required")
	}
	for _, existing := range c.Agents {
		if strings.EqualFold(existing.Name, a.Name) {
			return nil, fmt.Errorf("agent %q already exists", a.Name)
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.SessionKey == "" {
		a.SessionKey = DefaultSessionKey
	}
	c.Agents = append(c.Agents, a)
	if c.Active == "" {
		c.Active = a.ID
	}
	return &c.Agents[len(c.Agents)-1], nil
}

// FindAgent resolves ref as a name (case-insensitive), a full id, or a
// unique id prefix.
func (c *Config) FindAgent(ref string) (*Agent, error) {
	i := c.findIndex(ref)
	if i < 0 {
		return nil, fmt.Errorf("no agent %q", ref)
	}
	return &c.Agents[i], nil
}

func (c *Config) findIndex(ref string) int {
	if ref == "" {
		return -1
	}
	for i, a := range c.Agents {
		if a.ID == ref || strings.EqualFold(a.Name, ref) {
			return i
		}
	}
	match := -1
	for i, a := range c.Agents {
		if strings.HasPrefix(a.ID, ref) {
			if match >= 0 {
				return -1
			}
			match = i
		}
	}
	return match
}

// UseAgent makes ref the active agent.
func (c *Config) UseAgent(ref string) (*Agent, error) {
	a, err := c.FindAgent(ref)
	if err != nil {
		return nil, err
	}
	c.Active = a.ID
	return a, nil
}

// RemoveAgent deletes ref. Removing the active agent activates the first
// remaining one.
func (c *Config) RemoveAgent(ref string) (Agent, error) {
	i := c.findIndex(ref)
	if i < 0 {
		return Agent{}, fmt.Errorf("no agent %q", ref)
	}
	removed := c.Agents[i]
	c.Agents = append(c.Agents[:i], c.Agents[i+1:]...)
	if c.Active == removed.ID {
		c.Active = ""
		if len(c.Agents) > 0 {
			c.Active = c.Agents[0].ID
		}
	}
	return removed, nil
}

// ActiveAgent returns the active agent.
func (c *Config) ActiveAgent() (*Agent, error) {
	if len(c.Agents) == 0 {
		return nil, fmt.Errorf("no agents configured; run `clawline agent add <name> <url>`")
	}
	if c.Active == "" {
		return &c.Agents[0], nil
	}
	return c.FindAgent(c.Active)
}
