package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rahul/medcrew/internal/observability"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderAnthropic  = "anthropic"
)

// Providers reached through an OpenAI-compatible endpoint.
var defaultBaseURLs = map[string]string{
	ProviderOpenRouter: "https://openrouter.ai/api/v1",
	ProviderGemini:     "https://generativelanguage.googleapis.com/v1beta/openai",
}

// Options selects and configures a completion provider.
type Options struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	// Timeout bounds each HTTP call to the provider. Zero means no timeout.
	Timeout time.Duration

	Events *observability.Logger
	Logger *slog.Logger
}

// New creates the client for opts.Provider.
func New(opts Options) (Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required", opts.Provider)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("provider %s: model is required", opts.Provider)
	}
	httpClient := &http.Client{Timeout: opts.Timeout}

	switch opts.Provider {
	case ProviderOpenAI, ProviderOpenRouter, ProviderGemini:
		clientOpts := []openai.Option{
			openai.WithToken(opts.APIKey),
			openai.WithModel(opts.Model),
			openai.WithHTTPClient(httpClient),
		}
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURLs[opts.Provider]
		}
		if baseURL != "" {
			clientOpts = append(clientOpts, openai.WithBaseURL(baseURL))
		}
		model, err := openai.New(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", opts.Provider, err)
		}

		var callOpts []llms.CallOption
		if opts.MaxTokens > 0 {
			callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
		}
		if opts.Temperature > 0 {
			callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
		}
		return NewLangChainClient(model, opts.Provider, opts.Model, opts.Events, opts.Logger, callOpts...), nil

	case ProviderAnthropic:
		return NewAnthropicClient(opts.APIKey, opts.Model, opts.BaseURL, int64(opts.MaxTokens), httpClient, opts.Events, opts.Logger), nil

	default:
		return nil, fmt.Errorf("provider %s not supported", opts.Provider)
	}
}
