package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/Navneet-55/msmesolut/internal/agent"
	"github.com/Navneet-55/msmesolut/internal/config"
	"github.com/Navneet-55/msmesolut/internal/llm"
	"github.com/Navneet-55/msmesolut/internal/policy"
	"github.com/Navneet-55/msmesolut/internal/sanitize"
	"github.com/Navneet-55/msmesolut/internal/secrets"
	"github.com/Navneet-55/msmesolut/internal/store"
	"github.com/Navneet-55/msmesolut/internal/tenant"
)

// app is the set of components built from operator configuration. Every
// command that touches runs goes through it so the CLI and the server
// dispatch identically.
type app struct {
	cfg        *config.Config
	store      *store.Store
	dispatcher *agent.Dispatcher
	tenants    *tenant.Manager
	tenantList []tenant.Tenant
	sealer     *secrets.Sealer // nil when no secrets key is configured
}

// openStore loads configuration and opens the database.
func openStore() (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.Open(cfg.DatabasePath(), store.WithOptimisticWrites(cfg.OptimisticWrites))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, st, nil
}

func openApp(ctx context.Context) (*app, error) {
	cfg, st, err := openStore()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: st}
	if err := a.wire(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	provider, model, err := llm.NewProvider(ctx, providerConfig(cfg))
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}
	registry, err := agent.BuildRegistry(a.store, llm.NewCapabilities(provider, model))
	if err != nil {
		return fmt.Errorf("agent registry: %w", err)
	}

	pol, err := loadPolicy(ctx, cfg)
	if err != nil {
		return err
	}
	engine, err := policy.NewEngine(ctx, pol)
	if err != nil {
		return fmt.Errorf("policy engine: %w", err)
	}

	a.tenantList, err = tenant.LoadFile(cfg.TenantsFile)
	if err != nil {
		return err
	}
	a.tenants = tenant.NewManager(a.tenantList,
		tenant.WithDefaultRateLimit(cfg.DefaultRateLimit),
		tenant.WithOrganizations(a.store),
		tenant.WithRunCounter(a.store),
	)

	if cfg.SecretsKey != "" {
		if a.sealer, err = secrets.NewSealer(cfg.SecretsKey); err != nil {
			return err
		}
	}

	hooks := make([]agent.HookConfig, 0, len(cfg.Hooks))
	for _, h := range cfg.Hooks {
		hooks = append(hooks, agent.HookConfig{URL: h.URL, On: h.On})
	}
	opts := []agent.DispatcherOption{
		agent.WithAccessPolicy(engine),
		agent.WithSanitizer(sanitize.New().Map),
		agent.WithHooks(agent.LoadHooks(hooks, agent.NewNotificationHook(a.store))),
	}
	if cfg.CircuitThreshold > 0 {
		opts = append(opts, agent.WithCircuitBreaker(agent.NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitWindow)))
	}
	a.dispatcher = agent.NewDispatcher(registry, a.store, opts...)

	log.Debug().
		Str("provider", provider.Name()).
		Str("model", model).
		Str("policy", engine.Policy().VersionTag).
		Int("tenants", len(a.tenantList)).
		Msg("lumina_components_ready")
	return nil
}

// plan resolves an organization's plan the way the HTTP API does.
func (a *app) plan(ctx context.Context, orgID string) (string, error) {
	return a.tenants.Plan(ctx, orgID)
}

func (a *app) Close() error {
	return a.store.Close()
}

func providerConfig(cfg *config.Config) llm.ProviderConfig {
	pc := llm.ProviderConfig{
		Name:   cfg.LLMProvider,
		Model:  cfg.LLMModel,
		APIKey: cfg.ProviderAPIKey(),
	}
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		pc.BaseURL = cfg.OpenAIBaseURL
	case config.ProviderOpenRouter:
		pc.BaseURL = cfg.OpenRouterBaseURL
	}
	return pc
}

// loadPolicy reads the configured policy file, or returns nil for the
// built-in policy.
func loadPolicy(ctx context.Context, cfg *config.Config) (*policy.Policy, error) {
	if cfg.PolicyFile == "" {
		return nil, nil
	}
	abs, err := filepath.Abs(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("policy path: %w", err)
	}
	pol, err := policy.LoadPolicy(ctx, filepath.Base(abs), cfg.StrictPolicy, filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	return pol, nil
}
