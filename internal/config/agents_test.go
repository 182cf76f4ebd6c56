package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentLifecycle(t *testing.T) {
	cfg := Default()

	home, err := cfg.AddAgent(Agent{Name: "home", GatewayURL: "ws://home"})
	require.NoError(t, err)
	assert.NotEmpty(t, home.ID)
	assert.Equal(t, home.ID, cfg.Active, "first agent becomes active")

	work, err := cfg.AddAgent(Agent{Name: "work", GatewayURL: "ws://work", SessionKey: "ops"})
	require.NoError(t, err)
	assert.Equal(t, "ops", work.SessionKey)

	_, err = cfg.AddAgent(Agent{Name: "HOME", GatewayURL: "ws://other"})
	assert.Error(t, err)
	_, err = cfg.AddAgent(Agent{Name: "nourl"})
	assert.Error(t, err)

	a, err := cfg.UseAgent("Work")
	require.NoError(t, err)
	assert.Equal(t, "work", a.Name)
	active, err := cfg.ActiveAgent()
	require.NoError(t, err)
	assert.Equal(t, "work", active.Name)

	byPrefix, err := cfg.FindAgent(cfg.Agents[0].ID[:8])
	require.NoError(t, err)
	assert.Equal(t, "home", byPrefix.Name)

	removed, err := cfg.RemoveAgent("work")
	require.NoError(t, err)
	assert.Equal(t, "work", removed.Name)
	active, err = cfg.ActiveAgent()
	require.NoError(t, err)
	assert.Equal(t, "home", active.Name, "removing the active agent falls back to the first")

	_, err = cfg.RemoveAgent("work")
	assert.Error(t, err)
	require.NoError(t, cfg.Validate())
}

func TestActiveAgentWithoutAgents(t *testing.T) {
	_, err := Default().ActiveAgent()
	assert.ErrorContains(t, err, "agent add")
}
