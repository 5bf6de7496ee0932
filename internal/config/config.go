// Package config holds OPERATOR-LEVEL configuration for a Lumina installation:
// data directory, HTTP port, LLM provider selection and credentials, API keys,
// and the tenants file path. Values come from LUMINA_* environment variables,
// lumina.config.yaml, or the defaults registered in init.
//
// Per-organization settings (plan, rate limit, schedules) live in the tenants
// file loaded by internal/tenant, not here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the LUMINA_ prefix
// (e.g. "llm_provider" -> LUMINA_LLM_PROVIDER) and to a YAML field in
// lumina.config.yaml.
const (
	KeyDataDir           = "data_dir"
	KeyPort              = "port"
	KeyEnvironment       = "environment"
	KeyLLMProvider       = "llm_provider"
	KeyLLMModel          = "llm_model"
	KeyGeminiAPIKey      = "gemini_api_key"
	KeyOpenAIAPIKey      = "openai_api_key"
	KeyOpenAIBaseURL     = "openai_base_url"
	KeyOpenRouterAPIKey  = "openrouter_api_key"
	KeyOpenRouterBaseURL = "openrouter_base_url"
	KeyAPIKeys           = "api_keys"
	KeyTenantsFile       = "tenants_file"
	KeyCORSOrigins       = "cors_origins"
	KeySessionTTL        = "session_ttl"
	KeyOptimisticWrites  = "optimistic_writes"
	KeyPolicyFile        = "policy_file"
	KeyStrictPolicy      = "strict_policy"
	KeyDefaultRateLimit  = "default_rate_limit"
	KeyCircuitThreshold  = "circuit_threshold"
	KeyCircuitWindow     = "circuit_window"
	KeyHooks             = "hooks"
	KeySecretsKey        = "secrets_key"
)

// Provider names accepted by llm_provider.
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOffline    = "offline"
)

const (
	DefaultPort              = 4000
	DefaultEnvironment       = "development"
	DefaultProvider          = ProviderGemini
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultTenantsFile       = "lumina.tenants.yaml"
	DefaultSessionTTL        = 7 * 24 * time.Hour
	DefaultRateLimit         = 20 // requests per second per organization
	DefaultCircuitThreshold  = 5
	DefaultCircuitWindow     = 5 * time.Minute
	databaseFile             = "lumina.db"
)

// Config holds resolved operator-level configuration for a Lumina process.
type Config struct {
	DataDir           string
	Port              int
	Environment       string
	LLMProvider       string
	LLMModel          string // empty selects the provider default
	GeminiAPIKey      string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	APIKeys           map[string]string // key -> organization id
	TenantsFile       string
	CORSOrigins       []string
	SessionTTL        time.Duration
	OptimisticWrites  bool
	PolicyFile        string // empty uses the built-in permissive policy
	StrictPolicy      bool
	DefaultRateLimit  int
	CircuitThreshold  int // 0 disables the circuit breaker
	CircuitWindow     time.Duration
	Hooks             []Hook
	SecretsKey        string // seals integration credentials; 32 bytes or 64 hex chars
}

// Hook is a webhook notified about agent run outcomes.
type Hook struct {
	URL string `mapstructure:"url"`
	On  string `mapstructure:"on"` // completed, failed, or all
}

func init() {
	viper.SetEnvPrefix("LUMINA")
	viper.AutomaticEnv()
	setDefaults()
}

func setDefaults() {
	viper.SetDefault(KeyPort, DefaultPort)
	viper.SetDefault(KeyEnvironment, DefaultEnvironment)
	viper.SetDefault(KeyLLMProvider, DefaultProvider)
	viper.SetDefault(KeyOpenRouterBaseURL, DefaultOpenRouterBaseURL)
	viper.SetDefault(KeyTenantsFile, DefaultTenantsFile)
	viper.SetDefault(KeyCORSOrigins, "*")
	viper.SetDefault(KeySessionTTL, DefaultSessionTTL)
	viper.SetDefault(KeyOptimisticWrites, true)
	viper.SetDefault(KeyDefaultRateLimit, DefaultRateLimit)
	viper.SetDefault(KeyCircuitThreshold, DefaultCircuitThreshold)
	viper.SetDefault(KeyCircuitWindow, DefaultCircuitWindow)
}

// Load reads configuration from Viper (env vars, config file, defaults) and
// returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:           resolveDataDir(),
		Port:              viper.GetInt(KeyPort),
		Environment:       viper.GetString(KeyEnvironment),
		LLMProvider:       strings.ToLower(strings.TrimSpace(viper.GetString(KeyLLMProvider))),
		LLMModel:          strings.TrimSpace(viper.GetString(KeyLLMModel)),
		GeminiAPIKey:      firstNonEmpty(viper.GetString(KeyGeminiAPIKey), os.Getenv("GEMINI_API_KEY")),
		OpenAIAPIKey:      firstNonEmpty(viper.GetString(KeyOpenAIAPIKey), os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:     viper.GetString(KeyOpenAIBaseURL),
		OpenRouterAPIKey:  firstNonEmpty(viper.GetString(KeyOpenRouterAPIKey), os.Getenv("OPENROUTER_API_KEY")),
		OpenRouterBaseURL: viper.GetString(KeyOpenRouterBaseURL),
		APIKeys:           ParseAPIKeys(viper.GetString(KeyAPIKeys)),
		TenantsFile:       viper.GetString(KeyTenantsFile),
		CORSOrigins:       splitList(viper.GetString(KeyCORSOrigins)),
		SessionTTL:        viper.GetDuration(KeySessionTTL),
		OptimisticWrites:  viper.GetBool(KeyOptimisticWrites),
		PolicyFile:        viper.GetString(KeyPolicyFile),
		StrictPolicy:      viper.GetBool(KeyStrictPolicy),
		DefaultRateLimit:  viper.GetInt(KeyDefaultRateLimit),
		CircuitThreshold:  viper.GetInt(KeyCircuitThreshold),
		CircuitWindow:     viper.GetDuration(KeyCircuitWindow),
		SecretsKey:        viper.GetString(KeySecretsKey),
	}
	if err := viper.UnmarshalKey(KeyHooks, &cfg.Hooks); err != nil {
		return nil, fmt.Errorf("invalid configuration: hooks: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DatabasePath returns the full path to the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, databaseFile)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// ProviderAPIKey returns the credential for the selected provider.
func (c *Config) ProviderAPIKey() string {
	switch c.LLMProvider {
	case ProviderGemini:
		return c.GeminiAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderOpenRouter:
		return c.OpenRouterAPIKey
	default:
		return ""
	}
}

// WarnIfInsecure logs operator warnings for settings that are fine in
// development but not in production.
func (c *Config) WarnIfInsecure() {
	if len(c.APIKeys) == 0 {
		log.Warn().Msg("LUMINA_API_KEYS not set; only session tokens from /v1/auth/login will authenticate")
	}
	if c.LLMProvider != ProviderOffline && c.ProviderAPIKey() == "" {
		log.Warn().Str("provider", c.LLMProvider).Msg("no API key for LLM provider; falling back to offline provider")
	}
	if c.SecretsKey == "" {
		log.Warn().Msg("LUMINA_SECRETS_KEY not set; integration credentials are stored unencrypted")
	}
}

// ParseAPIKeys parses "key:org_id,key2:org_id2". Entries without an
// organization map to "default".
func ParseAPIKeys(s string) map[string]string {
	m := make(map[string]string)
	for _, part := range splitList(s) {
		orgID := "default"
		if idx := strings.Index(part, ":"); idx > 0 {
			orgID = strings.TrimSpace(part[idx+1:])
			part = strings.TrimSpace(part[:idx])
		}
		if part != "" && orgID != "" {
			m[part] = orgID
		}
	}
	return m
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lumina"
	}
	return filepath.Join(home, ".lumina")
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case ProviderGemini, ProviderOpenAI, ProviderOpenRouter, ProviderOffline:
	default:
		return fmt.Errorf("llm_provider must be one of gemini, openai, openrouter, offline (got %q)", c.LLMProvider)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (got %d)", c.Port)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	if c.DefaultRateLimit < 0 || c.CircuitThreshold < 0 {
		return fmt.Errorf("default_rate_limit and circuit_threshold must not be negative")
	}
	if c.CircuitThreshold > 0 && c.CircuitWindow <= 0 {
		return fmt.Errorf("circuit_window must be positive when the circuit breaker is enabled")
	}
	if n := len(c.SecretsKey); n != 0 && n != 32 && n != 64 {
		return fmt.Errorf("secrets_key must be 32 bytes or 64 hex characters (got %d)", n)
	}
	for i, h := range c.Hooks {
		if h.URL == "" {
			return fmt.Errorf("hooks[%d]: url is required", i)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
