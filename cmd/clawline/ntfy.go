package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/clawline/internal/ntfy"
)

func ntfyCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ntfy",
		Short: "Push notification helpers",
	}

	var topicFlag string
	test := &cobra.Command{
		Use:   "test",
		Short: "Send a test notification to the agent's topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(f)
			if err != nil {
				return err
			}
			defer a.Close()

			topic := topicFlag
			if topic == "" {
				agent, err := a.agent(f)
				if err != nil {
					return err
				}
				if agent.NtfyTopic == "" {
					return fmt.Errorf("agent %s has no ntfy topic; pass --topic or re-add with --ntfy auto", agent.Name)
				}
				topic = agent.NtfyTopic
			}
			c := ntfy.New(a.cfg.Ntfy.Server, topic, a.cfg.Ntfy.Token, a.cfg.Ntfy.Events)
			if err := c.SendTest(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent test notification to %s\n", topic)
			return nil
		},
	}
	test.Flags().StringVar(&topicFlag, "topic", "", "topic or full URL (default: the agent's topic)")

	cmd.AddCommand(test, &cobra.Command{
		Use:   "topic",
		Short: "Print a fresh random topic name",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), ntfy.GenerateTopic())
		},
	})
	return cmd
}
