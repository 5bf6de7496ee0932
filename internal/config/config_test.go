package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LUMINA_DATA_DIR", "LUMINA_PORT", "LUMINA_LLM_PROVIDER", "LUMINA_LLM_MODEL",
		"LUMINA_GEMINI_API_KEY", "LUMINA_OPENAI_API_KEY", "LUMINA_OPENROUTER_API_KEY",
		"LUMINA_API_KEYS", "LUMINA_SESSION_TTL", "LUMINA_OPTIMISTIC_WRITES",
		"LUMINA_POLICY_FILE", "LUMINA_DEFAULT_RATE_LIMIT", "LUMINA_CIRCUIT_THRESHOLD", "LUMINA_CIRCUIT_WINDOW",
		"LUMINA_SECRETS_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "OPENROUTER_API_KEY",
	} {
		t.Setenv(k, "")
	}
	viper.Reset()
	viper.SetEnvPrefix("LUMINA")
	viper.AutomaticEnv()
	setDefaults()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)
	t.Setenv("LUMINA_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, ProviderGemini, cfg.LLMProvider)
	assert.Equal(t, DefaultOpenRouterBaseURL, cfg.OpenRouterBaseURL)
	assert.Equal(t, DefaultSessionTTL, cfg.SessionTTL)
	assert.True(t, cfg.OptimisticWrites)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.APIKeys)
	assert.Empty(t, cfg.ProviderAPIKey())
	assert.Equal(t, DefaultRateLimit, cfg.DefaultRateLimit)
	assert.Equal(t, DefaultCircuitThreshold, cfg.CircuitThreshold)
	assert.Equal(t, DefaultCircuitWindow, cfg.CircuitWindow)
	assert.Empty(t, cfg.PolicyFile)
	assert.Empty(t, cfg.Hooks)
}

func TestLoad_FromEnv(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("LUMINA_DATA_DIR", dir)
	t.Setenv("LUMINA_PORT", "8081")
	t.Setenv("LUMINA_LLM_PROVIDER", "OpenRouter")
	t.Setenv("LUMINA_OPENROUTER_API_KEY", "or-key")
	t.Setenv("LUMINA_API_KEYS", "k1:org_a, k2")
	t.Setenv("LUMINA_SESSION_TTL", "2h")
	t.Setenv("LUMINA_OPTIMISTIC_WRITES", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, ProviderOpenRouter, cfg.LLMProvider)
	assert.Equal(t, "or-key", cfg.ProviderAPIKey())
	assert.Equal(t, map[string]string{"k1": "org_a", "k2": "default"}, cfg.APIKeys)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.OptimisticWrites)
	assert.Equal(t, dir+"/lumina.db", cfg.DatabasePath())
}

func TestLoad_FallsBackToVendorEnvKeys(t *testing.T) {
	resetViper(t)
	t.Setenv("LUMINA_DATA_DIR", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.ProviderAPIKey())
}

func TestLoad_InvalidProvider(t *testing.T) {
	resetViper(t)
	t.Setenv("LUMINA_LLM_PROVIDER", "anthropic")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm_provider must be one of")
}

func TestLoad_InvalidPort(t *testing.T) {
	resetViper(t)
	t.Setenv("LUMINA_PORT", "70000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port must be between")
}

func TestLoad_SecretsKeyLength(t *testing.T) {
	resetViper(t)
	t.Setenv("LUMINA_DATA_DIR", t.TempDir())
	t.Setenv("LUMINA_SECRETS_KEY", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secrets_key must be 32 bytes")

	t.Setenv("LUMINA_SECRETS_KEY", "0123456789abcdef0123456789abcdef")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.SecretsKey)
}

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]string
	}{
		{"", map[string]string{}},
		{"abc", map[string]string{"abc": "default"}},
		{"abc:org_1,def:org_2", map[string]string{"abc": "org_1", "def": "org_2"}},
		{" abc : org_1 , ,", map[string]string{"abc": "org_1"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseAPIKeys(tt.in), tt.in)
	}
}

func TestEnsureDataDir(t *testing.T) {
	cfg := &Config{DataDir: t.TempDir() + "/nested/lumina"}
	require.NoError(t, cfg.EnsureDataDir())
	assert.DirExists(t, cfg.DataDir)
}

func TestLoad_HooksFromConfigFile(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("LUMINA_DATA_DIR", dir)
	path := filepath.Join(dir, "lumina.config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm_provider: offline
policy_file: lumina.policy.yaml
circuit_threshold: 0
hooks:
  - url: https://hooks.example.test/runs
    on: failed
  - url: https://hooks.example.test/all
`), 0o600))
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "lumina.policy.yaml", cfg.PolicyFile)
	assert.Equal(t, 0, cfg.CircuitThreshold)
	assert.Equal(t, []Hook{
		{URL: "https://hooks.example.test/runs", On: "failed"},
		{URL: "https://hooks.example.test/all"},
	}, cfg.Hooks)
}

func TestLoad_HookWithoutURL(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("LUMINA_DATA_DIR", dir)
	path := filepath.Join(dir, "lumina.config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hooks:\n  - on: failed\n"), 0o600))
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hooks[0]: url is required")
}
