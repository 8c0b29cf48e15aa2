// Package llm provides the completion service clients used by the crew stages.
package llm

import "context"

// Client sends one system prompt and one user prompt and returns the reply text.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
