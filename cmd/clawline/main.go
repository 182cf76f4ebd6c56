package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/clawline/internal/auth"
	"github.com/ehrlich-b/clawline/internal/config"
	"github.com/ehrlich-b/clawline/internal/identity"
	"github.com/ehrlich-b/clawline/internal/logger"
	"github.com/ehrlich-b/clawline/internal/store"
)

var version = "dev"

type rootFlags struct {
	home     string
	logLevel string
	agent    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "clawline",
		Short:         "Terminal client for agent gateways",
		Long:          "Pairs this machine with an agent gateway and chats with the agent: streaming replies, history, push notifications and speech.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&f.home, "home", "", "config directory (default $CLAWLINE_HOME or ~/.clawline)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn, error (overrides config)")
	root.PersistentFlags().StringVarP(&f.agent, "agent", "a", "", "agent name or id (default: active agent)")

	root.AddCommand(
		agentCmd(f),
		identityCmd(f),
		chatCmd(f),
		sendCmd(f),
		historyCmd(f),
		logCmd(f),
		ntfyCmd(f),
	)
	return root
}

// app is everything a command needs from ~/.clawline.
type app struct {
	home   string
	cfg    *config.Config
	keys   *auth.KeyStore
	tokens *auth.TokenStore
	id     *identity.Identity
	logs   io.Closer
}

func loadApp(f *rootFlags) (*app, error) {
	home, err := resolveHome(f)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(home)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if f.logLevel != "" {
		level = f.logLevel
	}
	logs, err := logger.Init(level, cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	keys := auth.NewKeyStore(home)
	id, err := identity.LoadOrCreate(keys)
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("device identity: %w", err)
	}
	return &app{
		home:   home,
		cfg:    cfg,
		keys:   keys,
		tokens: auth.NewTokenStore(home),
		id:     id,
		logs:   logs,
	}, nil
}

func resolveHome(f *rootFlags) (string, error) {
	home := f.home
	if home == "" {
		var err error
		if home, err = config.Home(); err != nil {
			return "", err
		}
	}
	if err := config.EnsureHome(home); err != nil {
		return "", fmt.Errorf("create %s: %w", home, err)
	}
	return home, nil
}

func (a *app) Close() {
	a.logs.Close()
}

// agent resolves --agent, falling back to the active agent.
func (a *app) agent(f *rootFlags) (*config.Agent, error) {
	if f.agent != "" {
		return a.cfg.FindAgent(f.agent)
	}
	return a.cfg.ActiveAgent()
}

func (a *app) openStore() (*store.Store, error) {
	s, err := store.Open(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return s, nil
}
