package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rahul/medcrew/internal/observability"
)

// AnthropicClient implements Client using the Anthropic Messages API.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	events    *observability.Logger
	log       *slog.Logger
}

// NewAnthropicClient creates a client; an empty apiKey falls back to ANTHROPIC_API_KEY.
func NewAnthropicClient(apiKey, model, baseURL string, maxTokens int64, httpClient *http.Client, events *observability.Logger, log *slog.Logger) *AnthropicClient {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if log == nil {
		log = slog.Default()
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
		events:    events,
		log:       log,
	}
}

// Complete sends a prompt to Claude and returns the response text.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	c.log.Debug("Anthropic API call starting", "model", c.model, "maxTokens", c.maxTokens, "userPromptLen", len(userPrompt))

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})

	duration := time.Since(start)
	if err != nil {
		observability.CompletionCalls.WithLabelValues(ProviderAnthropic, "error").Inc()
		c.log.Error("Anthropic API call failed", "duration", duration, "error", err)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	observability.CompletionCalls.WithLabelValues(ProviderAnthropic, "ok").Inc()
	c.log.Debug("Anthropic API call completed", "duration", duration, "stopReason", msg.StopReason)
	c.events.LogCost(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens), string(c.model))

	for _, block := range msg.Content {
		if block.Type == "text" {
			c.events.LogLLM(string(c.model), systemPrompt, userPrompt, block.Text, duration)
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("no text content in response")
}
