package llm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rahul/medcrew/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	messages []llms.MessageContent
	resp     *llms.ContentResponse
	err      error
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	return m.resp, m.err
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLangChainClient_Complete(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        "a reply",
		StopReason:     "stop",
		GenerationInfo: map[string]any{"PromptTokens": 12, "CompletionTokens": 3},
	}}}}
	var events bytes.Buffer
	client := NewLangChainClient(model, ProviderGemini, "gemini-2.0-flash", observability.NewWriterLogger(&events), nil)

	out, err := client.Complete(context.Background(), "You are a neurologist.", "Case text")
	require.NoError(t, err)
	assert.Equal(t, "a reply", out)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.TextPart("You are a neurologist."), model.messages[0].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.TextPart("Case text"), model.messages[1].Parts[0])

	lines := strings.Split(strings.TrimSpace(events.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"llm"`)
	assert.Contains(t, lines[1], `"type":"cost"`)
}

func TestLangChainClient_NoSystemPrompt(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "x"}}}}
	client := NewLangChainClient(model, ProviderOpenAI, "gpt-4o-mini", nil, nil)

	_, err := client.Complete(context.Background(), "", "hi")
	require.NoError(t, err)
	require.Len(t, model.messages, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[0].Role)
}

func TestLangChainClient_Errors(t *testing.T) {
	cause := errors.New("429 too many requests")
	client := NewLangChainClient(&fakeModel{err: cause}, ProviderOpenRouter, "m", nil, nil)
	_, err := client.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "openrouter")

	client = NewLangChainClient(&fakeModel{resp: &llms.ContentResponse{}}, ProviderOpenRouter, "m", nil, nil)
	_, err = client.Complete(context.Background(), "s", "u")
	assert.Error(t, err)
}

func TestTokenUsage(t *testing.T) {
	p, c, ok := tokenUsage(map[string]any{"PromptTokens": float64(10), "CompletionTokens": int64(4)})
	assert.True(t, ok)
	assert.Equal(t, 10, p)
	assert.Equal(t, 4, c)

	_, _, ok = tokenUsage(map[string]any{"PromptTokens": 1})
	assert.False(t, ok)
	_, _, ok = tokenUsage(nil)
	assert.False(t, ok)
}
