// Package speech reads assistant replies aloud through an external
// text-to-speech command.
package speech

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Engine turns text into audio.
type Engine interface {
	Speak(ctx context.Context, text string) error
}

// CommandEngine runs a TTS binary once per utterance. The command line may
// contain {voice} and {text} placeholders; without {text} the text is passed
// as the final argument.
type CommandEngine struct {
	path string
	args []string
}

// NewCommandEngine parses a command line such as "espeak-ng -v {voice}".
func NewCommandEngine(commandLine, voice string) (*CommandEngine, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("speech: empty command")
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, fmt.Errorf("speech: %w", err)
	}
	var args []string
	for i := 1; i < len(fields); i++ {
		f := fields[i]
		if strings.Contains(f, "{voice}") {
			if voice == "" {
				// drop a dangling flag like "-v {voice}"
				if len(args) > 0 && strings.HasPrefix(args[len(args)-1], "-") {
					args = args[:len(args)-1]
				}
				continue
			}
			f = strings.ReplaceAll(f, "{voice}", voice)
		}
		args = append(args, f)
	}
	return &CommandEngine{path: path, args: args}, nil
}

func (e *CommandEngine) argv(text string) []string {
	out := make([]string, 0, len(e.args)+1)
	hasText := false
	for _, a := range e.args {
		if strings.Contains(a, "{text}") {
			a = strings.ReplaceAll(a, "{text}", text)
			hasText = true
		}
		out = append(out, a)
	}
	if !hasText {
		out = append(out, text)
	}
	return out
}

func (e *CommandEngine) Speak(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, e.path, e.argv(trimmed)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run()
}
