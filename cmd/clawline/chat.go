package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ehrlich-b/clawline/internal/gateway"
	"github.com/ehrlich-b/clawline/internal/logger"
	"github.com/ehrlich-b/clawline/internal/speech"
)

func chatCmd(f *rootFlags) *cobra.Command {
	var speakFlag string
	var noSpeechFlag bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat with an agent",
		Long:  "Connects to the agent's gateway, pairing this device if needed, and opens a prompt. Commands: /history, /state, /quit.",
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logger.Component("chat").With("agent", agent.Name)
			k := &sinks{agent: agent, ntfy: a.notifier(agent), log: log}
			if s, err := a.openStore(); err != nil {
				log.Warn("transcript cache disabled", "err", err)
			} else {
				defer s.Close()
				k.store = s
			}

			speakCmd := speakFlag
			if speakCmd == "" {
				speakCmd = a.cfg.Speech.Command
			}
			if speakCmd != "" && !noSpeechFlag {
				engine, err := speech.NewCommandEngine(speakCmd, agent.Voice)
				if err != nil {
					return err
				}
				q := speech.NewQueue(engine, log)
				defer q.Close()
				k.speech = q
			}

			sess, err := a.newSession(agent, 0)
			if err != nil {
				return err
			}
			defer sess.Close()

			out := &lockedWriter{w: cmd.OutOrStdout()}
			live := term.IsTerminal(int(os.Stdout.Fd()))

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				k.run(ctx, sess)
			}()
			go func() {
				defer wg.Done()
				render(ctx, sess, &streamPrinter{w: out, live: live})
			}()
			defer wg.Wait()
			defer stop()

			fmt.Fprintf(out, "connecting to %s (%s)\n", agent.Name, sess.URL())
			if err := sess.Connect(ctx); err != nil {
				return err
			}
			if err := waitReady(ctx, sess, out); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			return repl(ctx, sess, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVar(&speakFlag, "speak-cmd", "", "speech command for replies, e.g. \"say -v {voice}\" (default from config)")
	cmd.Flags().BoolVar(&noSpeechFlag, "no-speech", false, "disable speech even if configured")
	return cmd
}

// render prints replies and connection changes until ctx is done.
func render(ctx context.Context, sess *gateway.Session, p *streamPrinter) {
	events := sess.Events()
	states := sess.States()
	defer events.Close()
	defer states.Close()

	seenReady := false
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events.C():
			if !ok {
				return
			}
			if ev.Kind == gateway.EventKindChat {
				p.handle(ev.Chat)
			}
		case st, ok := <-states.C():
			if !ok {
				return
			}
			switch st.Kind {
			case gateway.StateReady:
				if seenReady {
					p.finishLine()
					fmt.Fprintln(p.w, "-- reconnected")
				}
				seenReady = true
			case gateway.StateError, gateway.StateDisconnected:
				if seenReady {
					p.finishLine()
					fmt.Fprintf(p.w, "-- %s\n", st)
				}
			}
		}
	}
}

func repl(ctx context.Context, sess *gateway.Session, in io.Reader, out io.Writer) error {
	if err := sess.FetchHistory(ctx); err != nil {
		fmt.Fprintf(out, "history: %v\n", err)
	}
	printMessages(out, sess.Messages())

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			switch line {
			case "/quit", "/exit":
				return nil
			case "/history":
				if err := sess.FetchHistory(ctx); err != nil {
					fmt.Fprintf(out, "history: %v\n", err)
					continue
				}
				printMessages(out, sess.Messages())
				continue
			case "/state":
				fmt.Fprintf(out, "%s  device %s\n", sess.State(), sess.Identity().DeviceID()[:16])
				continue
			}
			if strings.HasPrefix(line, "/") {
				fmt.Fprintln(out, "commands: /history /state /quit")
				continue
			}
			if err := sess.SendMessage(ctx, line); err != nil {
				fmt.Fprintf(out, "send failed: %v\n", err)
			}
		}
	}
}

// lockedWriter serializes writes from the render and prompt goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
