package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rahul/medcrew/internal/agent"
	"github.com/rahul/medcrew/internal/document"
	"github.com/rahul/medcrew/internal/governance"
	"github.com/rahul/medcrew/internal/llm"
	"github.com/rahul/medcrew/internal/observability"
	"github.com/rahul/medcrew/pkg/config"
	"github.com/spf13/cobra"
)

// app holds everything a command needs, built from flags and config.
type app struct {
	cfg          *config.Config
	log          *slog.Logger
	events       *observability.Logger
	definition   *agent.Definition
	policy       *governance.DefaultPolicyEngine
	completer    llm.Client
	runner       *agent.Runner
	conversation *agent.Conversation
	documents    *document.Extractor
	fetcher      *document.Fetcher

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// loadSettings reads the global flags, the config file and the crew
// definition. It needs no credentials.
func loadSettings(cmd *cobra.Command, logOut io.Writer) (*config.Config, *agent.Definition, *slog.Logger, error) {
	flags := cmd.Root().PersistentFlags()
	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	crewPath, err := flags.GetString("crew")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get crew flag: %w", err)
	}

	log := newLogger(logOut, verbose)
	slog.SetDefault(log)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if crewPath != "" {
		cfg.Pipeline.Definition = crewPath
	}

	def, err := agent.LoadDefinition(cfg.Pipeline.Definition)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := def.ApplyPrompts(agent.NewPromptManager(cfg.Pipeline.PromptsDir)); err != nil {
		return nil, nil, nil, err
	}
	return cfg, def, log, nil
}

// newApp wires the completion client, the runner and the conversation.
func newApp(cmd *cobra.Command, logOut io.Writer) (*app, error) {
	cfg, def, log, err := loadSettings(cmd, logOut)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		events:     observability.NewLogger(cfg.Logs.Dir),
		definition: def,
		documents:  document.NewExtractor(cfg.Pipeline.MaxDocumentChars, log),
	}
	a.fetcher = document.NewFetcher(a.documents)

	a.policy = governance.NewDefaultPolicyEngine()
	for _, p := range cfg.Governance.DenyPatterns {
		if err := a.policy.DenyPattern(p); err != nil {
			return nil, fmt.Errorf("governance.deny_patterns: %q: %w", p, err)
		}
	}
	for _, s := range cfg.Governance.DenySources {
		a.policy.DenySource(s)
	}

	name, p := cfg.GetDefaultProvider()
	completer, err := llm.New(llm.Options{
		Provider:    name,
		APIKey:      p.APIKey,
		Model:       p.Model,
		BaseURL:     p.BaseURL,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Timeout:     p.Timeout(),
		Events:      a.events,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	if ttl := cfg.Cache.TTL(); ttl > 0 {
		cached := llm.NewCachedClient(completer, ttl)
		a.closers = append(a.closers, cached.Close)
		completer = cached
	}
	a.completer = completer
	log.Debug("completion provider ready", "provider", name, "model", p.Model)

	pipeline, err := def.Pipeline()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runner, err = agent.NewRunner(pipeline, agent.RunnerConfig{
		Logger:          log,
		Events:          a.events,
		Completer:       completer,
		Policy:          a.policy,
		MaxAttempts:     cfg.Pipeline.MaxAttempts,
		MaxContextChars: cfg.Pipeline.MaxContextChars,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	stage, description, err := def.ConversationStage()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.conversation, err = agent.NewConversation(stage, description, completer, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
