package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Provider: ProviderGemini, Model: "gemini-2.0-flash"})
	assert.ErrorContains(t, err, "api key")

	_, err = New(Options{Provider: ProviderGemini, APIKey: "k"})
	assert.ErrorContains(t, err, "model")

	_, err = New(Options{Provider: "ollama", APIKey: "k", Model: "m"})
	assert.ErrorContains(t, err, "not supported")
}

func TestNew_Providers(t *testing.T) {
	for _, provider := range []string{ProviderOpenAI, ProviderOpenRouter, ProviderGemini} {
		client, err := New(Options{Provider: provider, APIKey: "k", Model: "m", MaxTokens: 512, Temperature: 0.2})
		require.NoError(t, err, provider)
		lc, ok := client.(*LangChainClient)
		require.True(t, ok, provider)
		assert.Equal(t, provider, lc.Provider)
		assert.Len(t, lc.Options, 2)
	}

	client, err := New(Options{Provider: ProviderAnthropic, APIKey: "k", Model: "claude-sonnet-4-5"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, client)
}

func TestNew_OpenAICompatibleEndpoint(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gemini-2.0-flash",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hipótese: enxaqueca."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 4, "total_tokens": 13}
		}`))
	}))
	defer srv.Close()

	client, err := New(Options{Provider: ProviderGemini, APIKey: "test-key", Model: "gemini-2.0-flash", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), "You are a neurologist.", "Cefaleia há 2 dias.")
	require.NoError(t, err)
	assert.Equal(t, "Hipótese: enxaqueca.", out)
	assert.Equal(t, "gemini-2.0-flash", got["model"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestAnthropicClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "Differential: migraine."}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 3}
		}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient("test-key", "claude-sonnet-4-5", srv.URL, 0, srv.Client(), nil, nil)
	out, err := client.Complete(context.Background(), "You are a neurologist.", "Headache.")
	require.NoError(t, err)
	assert.Equal(t, "Differential: migraine.", out)
}
