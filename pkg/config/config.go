package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingCredential means no enabled completion provider has an API key.
var ErrMissingCredential = errors.New("missing completion service credential")

type Config struct {
	App        AppConfig                 `json:"app"`
	Gateways   map[string]GatewayConfig  `json:"gateways"`
	Providers  map[string]ProviderConfig `json:"providers"`
	Memory     MemoryConfig              `json:"memory"`
	Pipeline   PipelineConfig            `json:"pipeline"`
	Batch      BatchConfig               `json:"batch"`
	Cache      CacheConfig               `json:"cache"`
	Governance GovernanceConfig          `json:"governance"`
	Logs       LogsConfig                `json:"logs"`
}

type AppConfig struct {
	Name string `json:"name"`
	// Provider picks one of Providers when several are enabled.
	Provider string `json:"provider,omitempty"`
}

type GatewayConfig struct {
	Token          string   `json:"token,omitempty"`
	Addr           string   `json:"addr,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	Enabled        bool     `json:"enabled"`
}

type ProviderConfig struct {
	APIKey         string  `json:"api_key"`
	Model          string  `json:"model"`
	BaseURL        string  `json:"base_url,omitempty"`
	MaxTokens      int     `json:"max_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	TimeoutSeconds int     `json:"timeout_seconds,omitempty"`
	Enabled        bool    `json:"enabled"`
}

// Timeout bounds a single call to the provider; zero means none.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

type MemoryConfig struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

type PipelineConfig struct {
	// Definition is a crew YAML file; empty selects the built-in crew.
	Definition       string `json:"definition,omitempty"`
	PromptsDir       string `json:"prompts_dir,omitempty"`
	MaxAttempts      int    `json:"max_attempts"`
	MaxContextChars  int    `json:"max_context_chars,omitempty"`
	MaxDocumentChars int    `json:"max_document_chars,omitempty"`
	HistoryLimit     int    `json:"history_limit,omitempty"`
}

type BatchConfig struct {
	DelaySeconds int `json:"delay_seconds"`
	Concurrency  int `json:"concurrency"`
}

func (b BatchConfig) Delay() time.Duration {
	return time.Duration(b.DelaySeconds) * time.Second
}

type CacheConfig struct {
	TTLSeconds int `json:"ttl_seconds"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type GovernanceConfig struct {
	DenyPatterns []string `json:"deny_patterns,omitempty"`
	DenySources  []string `json:"deny_sources,omitempty"`
}

type LogsConfig struct {
	Dir string `json:"dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "medcrew"},
		Gateways: map[string]GatewayConfig{
			"http": {Addr: ":8080"},
		},
		Providers: map[string]ProviderConfig{
			"gemini": {Model: "gemini-2.0-flash"},
		},
		Memory:   MemoryConfig{Type: "sqlite", Path: "medcrew.db"},
		Pipeline: PipelineConfig{PromptsDir: "./prompts", MaxAttempts: 3, HistoryLimit: 50},
		Batch:    BatchConfig{DelaySeconds: 20, Concurrency: 1},
		Logs:     LogsConfig{Dir: "logs"},
	}
}

// LoadConfig loads .env, then the JSON file at path (if it exists) over the
// defaults, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to open config file: %w", err)
		default:
			defer file.Close()
			decoder := json.NewDecoder(file)
			if err := decoder.Decode(cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		}
	}

	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

var providerKeyEnv = map[string]string{
	"gemini":     "GOOGLE_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
}

func (c *Config) applyEnv(getenv func(string) string) {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if c.Gateways == nil {
		c.Gateways = make(map[string]GatewayConfig)
	}

	for name, env := range providerKeyEnv {
		key := getenv(env)
		if key == "" {
			continue
		}
		p := c.Providers[name]
		p.APIKey = key
		p.Enabled = true
		c.Providers[name] = p
	}
	if v := getenv("MEDCREW_PROVIDER"); v != "" {
		c.App.Provider = v
	}
	if v := getenv("MEDCREW_MODEL"); v != "" {
		name, _ := c.GetDefaultProvider()
		if name == "" {
			name = c.App.Provider
		}
		if name != "" {
			p := c.Providers[name]
			p.Model = v
			c.Providers[name] = p
		}
	}
	for name, env := range map[string]string{"telegram": "TELEGRAM_TOKEN", "discord": "DISCORD_TOKEN"} {
		if token := getenv(env); token != "" {
			g := c.Gateways[name]
			g.Token = token
			g.Enabled = true
			c.Gateways[name] = g
		}
	}
}

// GetDefaultProvider returns the provider named by app.provider when it is
// enabled, otherwise the first enabled provider by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	if p, ok := c.Providers[c.App.Provider]; ok && p.Enabled {
		return c.App.Provider, p
	}
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGateway returns a gateway config if it is enabled.
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled {
		return g, true
	}
	return GatewayConfig{}, false
}

// Validate reports configuration errors that must stop the process before
// any case is analyzed.
func (c *Config) Validate() error {
	name, p := c.GetDefaultProvider()
	if name == "" || p.APIKey == "" {
		return fmt.Errorf("%w: set GOOGLE_API_KEY (or another provider key) in the environment or config file", ErrMissingCredential)
	}
	if p.Model == "" {
		return fmt.Errorf("provider %s: model is required", name)
	}
	if c.Pipeline.MaxAttempts < 0 {
		return fmt.Errorf("pipeline.max_attempts must not be negative")
	}
	if c.Batch.Concurrency < 0 || c.Batch.DelaySeconds < 0 {
		return fmt.Errorf("batch.delay_seconds and batch.concurrency must not be negative")
	}
	return nil
}
