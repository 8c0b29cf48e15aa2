package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 20, cfg.Batch.DelaySeconds)
	assert.Equal(t, "gemini-2.0-flash", cfg.Providers["gemini"].Model)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"app": {"name": "clinic", "provider": "openrouter"},
		"providers": {"openrouter": {"api_key": "k", "model": "meta/llama", "enabled": true}},
		"pipeline": {"max_attempts": 5, "max_context_chars": 4000},
		"batch": {"delay_seconds": 2, "concurrency": 4},
		"governance": {"deny_patterns": ["(?i)prescription"]}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "clinic", cfg.App.Name)
	assert.Equal(t, 5, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 4000, cfg.Pipeline.MaxContextChars)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, []string{"(?i)prescription"}, cfg.Governance.DenyPatterns)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "openrouter", name)
	assert.Equal(t, "meta/llama", p.Model)
}

func TestLoadConfig_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.applyEnv(envMap(map[string]string{
		"GOOGLE_API_KEY":   "g-key",
		"MEDCREW_PROVIDER": "gemini",
		"MEDCREW_MODEL":    "gemini-1.5-pro",
		"TELEGRAM_TOKEN":   "tg",
	}))

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "gemini", name)
	assert.Equal(t, "g-key", p.APIKey)
	assert.Equal(t, "gemini-1.5-pro", p.Model)

	tg, ok := cfg.GetGateway("telegram")
	assert.True(t, ok)
	assert.Equal(t, "tg", tg.Token)

	_, ok = cfg.GetGateway("discord")
	assert.False(t, ok)
}

func TestApplyEnv_ModelFollowsResolvedProvider(t *testing.T) {
	cfg := Default()
	cfg.applyEnv(envMap(map[string]string{
		"ANTHROPIC_API_KEY": "a-key",
		"MEDCREW_MODEL":     "claude-3-5-sonnet-latest",
	}))

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "anthropic", name)
	assert.Equal(t, "claude-3-5-sonnet-latest", p.Model)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	assert.True(t, errors.Is(err, ErrMissingCredential))

	cfg.applyEnv(envMap(map[string]string{"GOOGLE_API_KEY": "g-key"}))
	assert.NoError(t, cfg.Validate())

	cfg.Batch.Concurrency = -1
	assert.Error(t, cfg.Validate())
}

func TestDurations(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "20s", cfg.Batch.Delay().String())
	assert.Zero(t, cfg.Cache.TTL())
	assert.Zero(t, ProviderConfig{}.Timeout())
}
