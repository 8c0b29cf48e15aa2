package agent

import (
	"context"
	"fmt"
	"strings"
)

// Completer is the text-completion service a stage is bound to. Implementations
// must be safe for concurrent use; a single completer is shared by every stage
// and every run.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// Stage is a named reviewer persona. It is a plain value; the completer it
// talks to is supplied by the runner.
type Stage struct {
	ID           string `yaml:"id"`
	Role         string `yaml:"role"`
	Goal         string `yaml:"goal"`
	Instructions string `yaml:"instructions"`
}

// SystemFraming renders the stage persona as the system prompt.
func (s Stage) SystemFraming() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", strings.TrimSpace(s.Role))
	if goal := strings.TrimSpace(s.Goal); goal != "" {
		fmt.Fprintf(&b, "Your goal: %s\n", goal)
	}
	if instr := strings.TrimSpace(s.Instructions); instr != "" {
		b.WriteString("\n")
		b.WriteString(instr)
		b.WriteString("\n")
	}
	return b.String()
}
