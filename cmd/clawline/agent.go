package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/clawline/internal/auth"
	"github.com/ehrlich-b/clawline/internal/config"
	"github.com/ehrlich-b/clawline/internal/gateway"
	"github.com/ehrlich-b/clawline/internal/ntfy"
	"github.com/ehrlich-b/clawline/internal/store"
)

func agentCmd(f *rootFlags) *cobra.Command {
	agent := &cobra.Command{
		Use:   "agent",
		Short: "Manage gateway agents",
	}
	agent.AddCommand(agentAddCmd(f), agentListCmd(f), agentUseCmd(f), agentRmCmd(f))
	return agent
}

func agentAddCmd(f *rootFlags) *cobra.Command {
	var sessionFlag, ntfyFlag, voiceFlag string
	cmd := &cobra.Command{
		Use:   "add <name> <gateway-url>",
		Short: "Add an agent",
		Long:  "Add an agent reachable at a gateway URL (http(s) or ws(s)). Use --ntfy auto to generate a private push topic.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := resolveHome(f)
			if err != nil {
				return err
			}
			cfg, err := config.LoadForEdit(home)
			if err != nil {
				return err
			}
			url, err := gateway.NormalizeURL(args[1])
			if err != nil {
				return err
			}
			topic := ntfyFlag
			if topic == "auto" {
				topic = ntfy.GenerateTopic()
			}
			a, err := cfg.AddAgent(config.Agent{
				Name:       args[0],
				GatewayURL: url,
				SessionKey: sessionFlag,
				NtfyTopic:  topic,
				Voice:      voiceFlag,
			})
			if err != nil {
				return err
			}
			added := *a
			if err := config.Save(home, cfg); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "added %s (%s) -> %s\n", added.Name, added.ID[:8], added.GatewayURL)
			if added.NtfyTopic != "" {
				fmt.Fprintf(out, "push topic: %s\n", added.NtfyTopic)
			}
			if cfg.Active == added.ID {
				fmt.Fprintln(out, "active agent")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionFlag, "session", config.DefaultSessionKey, "gateway session key")
	cmd.Flags().StringVar(&ntfyFlag, "ntfy", "", "ntfy topic for push notifications (\"auto\" generates one)")
	cmd.Flags().StringVar(&voiceFlag, "voice", "", "voice passed to the speech command")
	return cmd
}

func agentListCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := resolveHome(f)
			if err != nil {
				return err
			}
			cfg, err := config.LoadForEdit(home)
			if err != nil {
				return err
			}
			if len(cfg.Agents) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no agents; run: clawline agent add <name> <url>")
				return nil
			}
			paired := pairedAgents(auth.NewTokenStore(home))
			active, _ := cfg.ActiveAgent()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tNAME\tID\tGATEWAY\tSESSION\tPAIRED")
			for _, a := range cfg.Agents {
				mark := ""
				if active != nil && active.ID == a.ID {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", mark, a.Name, a.ID[:min(8, len(a.ID))], a.GatewayURL, a.SessionKey, yesNo(paired[a.ID]))
			}
			return tw.Flush()
		},
	}
}

func agentUseCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "use <name|id>",
		Short: "Make an agent the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := resolveHome(f)
			if err != nil {
				return err
			}
			cfg, err := config.LoadForEdit(home)
			if err != nil {
				return err
			}
			a, err := cfg.UseAgent(args[0])
			if err != nil {
				return err
			}
			name := a.Name
			if err := config.Save(home, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active agent: %s\n", name)
			return nil
		},
	}
}

func agentRmCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name|id>",
		Short: "Remove an agent, its device token and cached transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := resolveHome(f)
			if err != nil {
				return err
			}
			cfg, err := config.LoadForEdit(home)
			if err != nil {
				return err
			}
			removed, err := cfg.RemoveAgent(args[0])
			if err != nil {
				return err
			}
			if err := config.Save(home, cfg); err != nil {
				return err
			}
			if err := auth.NewTokenStore(home).Delete(removed.ID); err != nil {
				return err
			}
			if err := dropTranscript(home, removed.ID); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", removed.Name)
			return nil
		},
	}
}

func dropTranscript(home, agentID string) error {
	cfg, err := config.Load(home)
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.DeleteTranscript(agentID)
}

func pairedAgents(ts *auth.TokenStore) map[string]bool {
	out := map[string]bool{}
	ids, err := ts.Agents()
	if err != nil {
		return out
	}
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
