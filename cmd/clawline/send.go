package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/clawline/internal/chat"
	"github.com/ehrlich-b/clawline/internal/gateway"
	"github.com/ehrlich-b/clawline/internal/logger"
)

func sendCmd(f *rootFlags) *cobra.Command {
	var waitFlag, timeoutFlag time.Duration
	var noReplyFlag bool
	cmd := &cobra.Command{
		Use:   "send <message...>",
		Short: "Send one message and print the agent's reply",
		Args:  cobra.MinimumNArgs(1),
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
			text := strings.Join(args, " ")

			log := logger.Component("send").With("agent", agent.Name)
			k := &sinks{agent: agent, log: log}
			if s, err := a.openStore(); err == nil {
				defer s.Close()
				k.store = s
			}

			sess, err := a.newSession(agent, 0)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			sinksDone := make(chan struct{})
			go func() {
				defer close(sinksDone)
				k.run(ctx, sess)
			}()
			defer func() {
				cancel()
				<-sinksDone
			}()

			// subscribe before sending so a fast reply is not missed
			events := sess.Events()
			defer events.Close()

			if err := sess.Connect(ctx); err != nil {
				return err
			}
			readyCtx, readyCancel := context.WithTimeout(ctx, waitFlag)
			err = waitReady(readyCtx, sess, cmd.ErrOrStderr())
			readyCancel()
			if err != nil {
				return fmt.Errorf("gateway not ready: %w", err)
			}

			if err := sess.SendMessage(ctx, text); err != nil {
				return err
			}
			if noReplyFlag {
				return nil
			}

			reply, err := awaitFinal(ctx, events, timeoutFlag)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
			if reply.MediaPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "[media] %s\n", reply.MediaPath)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&waitFlag, "wait", time.Minute, "how long to wait for the gateway (including pairing)")
	cmd.Flags().DurationVar(&timeoutFlag, "timeout", 2*time.Minute, "how long to wait for the reply")
	cmd.Flags().BoolVar(&noReplyFlag, "no-reply", false, "return as soon as the gateway accepts the message")
	return cmd
}

// awaitFinal returns the first final reply on events.
func awaitFinal(ctx context.Context, events *gateway.Subscription[gateway.Event], timeout time.Duration) (chat.Notification, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return chat.Notification{}, ctx.Err()
		case <-timer.C:
			return chat.Notification{}, fmt.Errorf("no reply within %s", timeout)
		case ev, ok := <-events.C():
			if !ok {
				return chat.Notification{}, gateway.ErrClosed
			}
			if ev.Kind == gateway.EventKindChat && ev.Chat.Kind == chat.KindFinal {
				return ev.Chat, nil
			}
		}
	}
}
