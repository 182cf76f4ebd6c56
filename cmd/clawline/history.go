package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func historyCmd(f *rootFlags) *cobra.Command {
	var limitFlag int
	var cachedFlag bool
	var waitFlag time.Duration
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent messages",
		Long:  "Fetches chat history from the gateway and refreshes the local cache. With --cached, prints the cache without connecting.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(f)
			if err != nil {
				return err
			}
			defer a.Close()
			agent, err := a.agent(f)
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if cachedFlag {
				msgs, err := s.ListMessages(agent.ID, limitFlag)
				if err != nil {
					return err
				}
				if len(msgs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no cached messages")
				}
				printMessages(cmd.OutOrStdout(), msgs)
				return nil
			}

			sess, err := a.newSession(agent, limitFlag)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), waitFlag)
			defer cancel()
			if err := sess.Connect(ctx); err != nil {
				return err
			}
			if err := waitReady(ctx, sess, cmd.ErrOrStderr()); err != nil {
				return fmt.Errorf("gateway not ready: %w", err)
			}
			if err := sess.FetchHistory(ctx); err != nil {
				return err
			}
			msgs := sess.Messages()
			if err := s.ReplaceTranscript(agent.ID, msgs); err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), msgs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limitFlag, "limit", "n", 0, "number of messages (default from config)")
	cmd.Flags().BoolVar(&cachedFlag, "cached", false, "print the local cache without connecting")
	cmd.Flags().DurationVar(&waitFlag, "wait", time.Minute, "how long to wait for the gateway")
	return cmd
}
