package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/dotsetgreg/repcue/pkg/bus"
	"github.com/dotsetgreg/repcue/pkg/conversation"
	"github.com/spf13/cobra"
)

type chatOptions struct {
	message string
	session string
	user    string
	persist bool
	show    bool
}

func newChatCommand(opts *globalOptions) *cobra.Command {
	co := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Check in locally as one member (CLI mode)",
		Long:  "Run an interactive check-in conversation, or send one-shot messages, without any chat transport.",
		Example: strings.Join([]string{
			"  repcue chat",
			"  repcue chat --session class-6am --user sam",
			"  repcue chat --message \"push me hard, let's do deadlifts\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg, co.persist)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = rt.Close(ctx)
			}()

			s := &chatSession{rt: rt, opts: co, out: cmd.OutOrStdout()}
			if strings.TrimSpace(co.message) != "" {
				return s.send(cmd.Context(), co.message)
			}
			fmt.Fprintf(s.out, "%s check-in as %s in %s (Ctrl+C to exit, /prefs shows your record)\n\n", appName, co.user, co.session)
			s.interactive(cmd.Context(), cmd.InOrStdin())
			return nil
		},
	}

	cmd.Flags().StringVarP(&co.message, "message", "m", "", "One-shot check-in text")
	cmd.Flags().StringVarP(&co.session, "session", "s", "cli-session", "Training session id")
	cmd.Flags().StringVarP(&co.user, "user", "u", "cli-user", "Member id")
	cmd.Flags().BoolVar(&co.persist, "persist", false, "Keep conversation state in the SQLite store")
	cmd.Flags().BoolVar(&co.show, "show", false, "Print the preference record after each reply")

	return cmd
}

type chatSession struct {
	rt   *engineRuntime
	opts *chatOptions
	out  io.Writer
}

func (s *chatSession) send(ctx context.Context, text string) error {
	reply, err := s.rt.engine.Handle(ctx, bus.InboundMessage{
		Channel:   "cli",
		SessionID: s.opts.session,
		UserID:    s.opts.user,
		Text:      text,
	})
	fmt.Fprintf(s.out, "\n%s %s\n", appName, reply)
	if err != nil {
		return err
	}
	if s.opts.show {
		return s.printRecord(ctx)
	}
	return nil
}

func (s *chatSession) printRecord(ctx context.Context) error {
	st, err := s.rt.engine.PairState(ctx, s.opts.session, s.opts.user)
	if err != nil {
		return err
	}
	fmt.Fprint(s.out, formatRecord(st))
	return nil
}

func formatRecord(st conversation.State) string {
	r := st.Record.Flatten()
	var b strings.Builder
	fmt.Fprintf(&b, "  phase: %s\n", st.Phase)
	fmt.Fprintf(&b, "  intensity: %s (%s)\n", orDash(r.Intensity), r.IntensitySource)
	fmt.Fprintf(&b, "  goal: %s (%s)\n", orDash(r.SessionGoal), r.SessionGoalSource)
	fmt.Fprintf(&b, "  targets: %s\n", orDash(strings.Join(r.MuscleTargets, ", ")))
	fmt.Fprintf(&b, "  lessen: %s\n", orDash(strings.Join(r.MuscleLessens, ", ")))
	fmt.Fprintf(&b, "  avoid joints: %s\n", orDash(strings.Join(r.AvoidJoints, ", ")))
	include := make([]string, 0, len(r.IncludeExercises))
	for _, e := range r.IncludeExercises {
		include = append(include, e.Name)
	}
	avoid := make([]string, 0, len(r.AvoidExercises))
	for _, e := range r.AvoidExercises {
		avoid = append(avoid, e.Name)
	}
	fmt.Fprintf(&b, "  include: %s\n", orDash(strings.Join(include, ", ")))
	fmt.Fprintf(&b, "  avoid: %s\n", orDash(strings.Join(avoid, ", ")))
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// handleLine runs one line of interactive input and reports whether the
// session should end.
func (s *chatSession) handleLine(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return false
	case "exit", "quit":
		fmt.Fprintln(s.out, "Goodbye!")
		return true
	case "/prefs":
		if err := s.printRecord(ctx); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
		return false
	}
	if err := s.send(ctx, input); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	fmt.Fprintln(s.out)
	return false
}

func (s *chatSession) interactive(ctx context.Context, in io.Reader) {
	prompt := fmt.Sprintf("%s You: ", appName)

	if in != os.Stdin {
		s.simpleInteractive(ctx, in, prompt)
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".repcue_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(s.out, "Error initializing readline: %v\n", err)
		fmt.Fprintln(s.out, "Falling back to simple input mode...")
		s.simpleInteractive(ctx, in, prompt)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Fprintln(s.out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(s.out, "Error reading input: %v\n", err)
			continue
		}
		if s.handleLine(ctx, line) {
			return
		}
	}
}

func (s *chatSession) simpleInteractive(ctx context.Context, in io.Reader, prompt string) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(s.out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				fmt.Fprintln(s.out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(s.out, "Error reading input: %v\n", err)
			return
		}
		if s.handleLine(ctx, line) {
			return
		}
	}
}
