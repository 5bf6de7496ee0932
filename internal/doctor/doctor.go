// Package doctor provides preflight checks for a Lumina installation:
// configuration, database, LLM provider, policy and tenants file.
// Used by `lumina doctor`.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Navneet-55/msmesolut/internal/config"
	"github.com/Navneet-55/msmesolut/internal/policy"
	"github.com/Navneet-55/msmesolut/internal/store"
	"github.com/Navneet-55/msmesolut/internal/tenant"
)

// Check statuses, ordered by severity.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com"

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which checks run.
type Options struct {
	Config       *config.Config // nil loads configuration
	SkipUpstream bool           // skip provider connectivity (CI/offline)
	HTTPClient   *http.Client
}

// Run executes all checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.Load()
		if err != nil {
			report.Checks = append(report.Checks, CheckResult{
				Name: "config_load", Category: "config", Status: StatusFail,
				Message: fmt.Sprintf("Cannot load config: %v", err),
				Fix:     "Check LUMINA_* variables and lumina.config.yaml",
			})
			report.tally()
			return report
		}
	}

	report.Checks = append(report.Checks,
		checkDataDir(cfg),
		checkDatabase(ctx, cfg),
		checkProvider(cfg),
		checkPolicy(ctx, cfg),
		checkTenants(cfg),
	)
	report.Checks = append(report.Checks, checkCredentials(cfg)...)
	if !opts.SkipUpstream {
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 5 * time.Second}
		}
		if r, ok := checkUpstream(ctx, client, cfg); ok {
			report.Checks = append(report.Checks, r...)
		}
	}
	report.tally()
	return report
}

func (r *Report) tally() {
	r.Summary = Summary{}
	for _, c := range r.Checks {
		switch c.Status {
		case StatusPass:
			r.Summary.Pass++
		case StatusWarn:
			r.Summary.Warn++
		case StatusFail:
			r.Summary.Fail++
		}
	}
	r.Status = StatusPass
	if r.Summary.Warn > 0 {
		r.Status = StatusWarn
	}
	if r.Summary.Fail > 0 {
		r.Status = StatusFail
	}
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.DataDir, err),
			Fix:     "Ensure LUMINA_DATA_DIR exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s not writable: %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkDatabase(ctx context.Context, cfg *config.Config) CheckResult {
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return CheckResult{
			Name: "database", Category: "config", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Check that the data directory is on a local, writable filesystem",
		}
	}
	defer st.Close()

	start := time.Now()
	if err := st.Ping(ctx); err != nil {
		return CheckResult{Name: "database", Category: "config", Status: StatusFail, Message: err.Error()}
	}
	msg := fmt.Sprintf("%s (%dms)", cfg.DatabasePath(), time.Since(start).Milliseconds())
	if _, err := st.GetUserByEmail(ctx, store.DemoEmail); err == nil {
		msg += ", demo data present"
	}
	return CheckResult{Name: "database", Category: "config", Status: StatusPass, Message: msg}
}

func checkProvider(cfg *config.Config) CheckResult {
	if cfg.LLMProvider == config.ProviderOffline {
		return CheckResult{
			Name: "llm_provider", Category: "config", Status: StatusWarn,
			Message: "offline (deterministic placeholder output)",
			Fix:     "Set LUMINA_LLM_PROVIDER and its API key for real model output",
		}
	}
	if cfg.ProviderAPIKey() == "" {
		return CheckResult{
			Name: "llm_provider", Category: "config", Status: StatusWarn,
			Message: fmt.Sprintf("%s selected but no API key found; runs fall back to offline", cfg.LLMProvider),
			Fix:     fmt.Sprintf("Set LUMINA_%s_API_KEY", strings.ToUpper(cfg.LLMProvider)),
		}
	}
	return CheckResult{
		Name: "llm_provider", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (key configured)", cfg.LLMProvider),
	}
}

func checkPolicy(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg.PolicyFile == "" {
		return CheckResult{
			Name: "policy_valid", Category: "config", Status: StatusPass,
			Message: "built-in policy (every plan may run every agent)",
		}
	}
	abs, err := filepath.Abs(cfg.PolicyFile)
	if err == nil {
		var pol *policy.Policy
		pol, err = policy.LoadPolicy(ctx, filepath.Base(abs), cfg.StrictPolicy, filepath.Dir(abs))
		if err == nil {
			return CheckResult{
				Name: "policy_valid", Category: "config", Status: StatusPass,
				Message: fmt.Sprintf("%s (%s, %d plans)", cfg.PolicyFile, pol.VersionTag, len(pol.Plans)),
			}
		}
	}
	return CheckResult{
		Name: "policy_valid", Category: "config", Status: StatusFail,
		Message: fmt.Sprintf("%s: %v", cfg.PolicyFile, err),
		Fix:     "Fix the policy file or unset LUMINA_POLICY_FILE",
	}
}

func checkTenants(cfg *config.Config) CheckResult {
	tenants, err := tenant.LoadFile(cfg.TenantsFile)
	if err != nil {
		return CheckResult{
			Name: "tenants_file", Category: "config", Status: StatusFail,
			Message: err.Error(),
		}
	}
	if tenants == nil {
		return CheckResult{
			Name: "tenants_file", Category: "config", Status: StatusPass,
			Message: fmt.Sprintf("%s absent (defaults for every organization, no schedules)", cfg.TenantsFile),
		}
	}
	schedules := 0
	for _, t := range tenants {
		schedules += len(t.Schedules)
	}
	return CheckResult{
		Name: "tenants_file", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (%d tenants, %d schedules)", cfg.TenantsFile, len(tenants), schedules),
	}
}

func checkCredentials(cfg *config.Config) []CheckResult {
	var results []CheckResult
	if len(cfg.APIKeys) == 0 {
		results = append(results, CheckResult{
			Name: "api_keys", Category: "config", Status: StatusWarn,
			Message: "No API keys; only session tokens authenticate",
			Fix:     "Set LUMINA_API_KEYS=key:org_id for service callers",
		})
	} else {
		results = append(results, CheckResult{
			Name: "api_keys", Category: "config", Status: StatusPass,
			Message: fmt.Sprintf("%d key(s)", len(cfg.APIKeys)),
		})
	}
	if cfg.SecretsKey == "" {
		results = append(results, CheckResult{
			Name: "secrets_key", Category: "config", Status: StatusWarn,
			Message: "Not set; integration credentials are stored unencrypted",
			Fix:     "Set LUMINA_SECRETS_KEY (32 bytes or 64 hex characters)",
		})
	} else {
		results = append(results, CheckResult{
			Name: "secrets_key", Category: "config", Status: StatusPass, Message: "Configured",
		})
	}
	return results
}

// checkUpstream calls the selected provider's endpoint. ok is false when
// there is nothing to call.
func checkUpstream(ctx context.Context, client *http.Client, cfg *config.Config) ([]CheckResult, bool) {
	var baseURL string
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		baseURL = geminiEndpoint
	case config.ProviderOpenAI:
		baseURL = cfg.OpenAIBaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
	case config.ProviderOpenRouter:
		baseURL = cfg.OpenRouterBaseURL
	case config.ProviderOffline:
		return nil, false
	}
	if baseURL == "" || cfg.ProviderAPIKey() == "" {
		return nil, false
	}
	name := "llm_upstream"

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if err != nil {
		return []CheckResult{{
			Name: name, Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("Invalid URL: %v", err),
		}}, true
	}
	start := time.Now()
	resp, err := client.Do(req) //nolint:gosec // URL from operator configuration
	latency := time.Since(start)
	if err != nil {
		return []CheckResult{{
			Name: name, Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("Connection failed: %v", err),
			Fix:     "Check network connectivity and the provider base URL",
		}}, true
	}
	resp.Body.Close()

	results := []CheckResult{{
		Name: name, Category: "upstream", Status: StatusPass,
		Message: fmt.Sprintf("%s: %dms", baseURL, latency.Milliseconds()),
	}}
	switch {
	case latency > 2*time.Second:
		results = append(results, CheckResult{
			Name: "llm_upstream_latency", Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("%.1fs (> 2s threshold)", latency.Seconds()),
		})
	case latency > time.Second:
		results = append(results, CheckResult{
			Name: "llm_upstream_latency", Category: "upstream", Status: StatusWarn,
			Message: fmt.Sprintf("%.1fs (> 1s threshold)", latency.Seconds()),
		})
	}
	return results, true
}
