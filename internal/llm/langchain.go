package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rahul/medcrew/internal/observability"
	"github.com/tmc/langchaingo/llms"
)

// LangChainClient implements Client on top of a langchaingo model.
type LangChainClient struct {
	Model    llms.Model
	Provider string
	Name     string
	Options  []llms.CallOption
	Events   *observability.Logger
	log      *slog.Logger
}

func NewLangChainClient(model llms.Model, provider, name string, events *observability.Logger, log *slog.Logger, opts ...llms.CallOption) *LangChainClient {
	if log == nil {
		log = slog.Default()
	}
	return &LangChainClient{
		Model:    model,
		Provider: provider,
		Name:     name,
		Options:  opts,
		Events:   events,
		log:      log,
	}
}

func (c *LangChainClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var messages []llms.MessageContent
	if systemPrompt != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(userPrompt)},
	})

	start := time.Now()
	c.log.Debug("completion call starting", "provider", c.Provider, "model", c.Name, "userPromptLen", len(userPrompt))

	resp, err := c.Model.GenerateContent(ctx, messages, c.Options...)
	duration := time.Since(start)
	if err != nil {
		observability.CompletionCalls.WithLabelValues(c.Provider, "error").Inc()
		c.log.Error("completion call failed", "provider", c.Provider, "duration", duration, "error", err)
		return "", fmt.Errorf("%s completion error: %w", c.Provider, err)
	}
	if len(resp.Choices) == 0 {
		observability.CompletionCalls.WithLabelValues(c.Provider, "error").Inc()
		return "", errors.New("completion returned no choices")
	}
	observability.CompletionCalls.WithLabelValues(c.Provider, "ok").Inc()

	choice := resp.Choices[0]
	c.log.Debug("completion call completed", "provider", c.Provider, "duration", duration, "stopReason", choice.StopReason)
	c.Events.LogLLM(c.Name, systemPrompt, userPrompt, choice.Content, duration)
	if prompt, completion, ok := tokenUsage(choice.GenerationInfo); ok {
		c.Events.LogCost(prompt, completion, c.Name)
	}
	return choice.Content, nil
}

// tokenUsage reads the token counters providers put in GenerationInfo.
func tokenUsage(info map[string]any) (int, int, bool) {
	prompt, okP := asInt(info["PromptTokens"])
	completion, okC := asInt(info["CompletionTokens"])
	return prompt, completion, okP && okC
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
