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
	"syscall"

	"github.com/rahul/medcrew/internal/agent"
	"github.com/rahul/medcrew/internal/governance"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type ChatCmd struct{}

func NewChatCmd() *ChatCmd {
	return &ChatCmd{}
}

func (c *ChatCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the conversational assistant in the terminal",
		Long: `Start a conversation with the assistant. The transcript lives in memory
for the duration of the session.

Commands: /reset clears the transcript, /exit quits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := &chatSession{
				conversation: a.conversation,
				policy:       a.policy,
				interactive:  term.IsTerminal(int(os.Stdin.Fd())),
			}
			return s.run(ctx, os.Stdin, os.Stdout)
		},
	}
	return cmd
}

type chatSession struct {
	conversation *agent.Conversation
	policy       governance.PolicyEngine
	interactive  bool
	transcript   []agent.Message
}

func (s *chatSession) run(ctx context.Context, in io.Reader, out io.Writer) error {
	if s.interactive {
		fmt.Fprintln(out, "Type your message. /reset clears the conversation, /exit quits.")
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		if s.interactive {
			fmt.Fprint(out, "\n> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			s.transcript = nil
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		reply, err := s.send(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, governance.ErrDenied) {
				fmt.Fprintln(out, "This request is not allowed by the system policy.")
				continue
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, reply)
	}
}

// send appends the user entry and, only if the reply succeeds, the assistant entry.
func (s *chatSession) send(ctx context.Context, text string) (string, error) {
	if s.policy != nil {
		if err := governance.Check(ctx, s.policy, governance.Request{Source: governance.SourceChat, ChatID: "terminal", Text: text}); err != nil {
			return "", err
		}
	}
	user := agent.Message{Role: agent.RoleUser, Content: text}
	reply, err := s.conversation.Reply(ctx, append(s.transcript, user))
	if err != nil {
		return "", err
	}
	s.transcript = append(s.transcript, user, reply)
	return reply.Content, nil
}
