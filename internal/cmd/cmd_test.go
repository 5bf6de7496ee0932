package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Navneet-55/msmesolut/internal/agent"
	"github.com/Navneet-55/msmesolut/internal/config"
	"github.com/Navneet-55/msmesolut/internal/doctor"
	"github.com/Navneet-55/msmesolut/internal/store"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	expected := []string{"version", "serve", "agents", "agent", "runs", "seed", "doctor"}
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, registered[name], "subcommand %q should be registered", name)
	}
}

func TestRootCommand_HelpOutput(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"--help"})

	err := rootCmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Lumina runs AI agents")
	assert.Contains(t, output, "serve")
	assert.Contains(t, output, "runs")
	assert.Contains(t, output, "seed")
}

func TestVersionVars_HaveDefaults(t *testing.T) {
	assert.Equal(t, "dev", Version)
	assert.Equal(t, "none", Commit)
	assert.Equal(t, "unknown", BuildDate)
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	for _, name := range []string{"config", "verbose", "log-level", "log-format", "otel"} {
		t.Run(name, func(t *testing.T) {
			assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "flag %q should be registered", name)
		})
	}
}

func TestSubcommandFlags(t *testing.T) {
	assert.NotNil(t, serveCmd.Flags().Lookup("port"))
	for _, name := range []string{"org", "type", "input", "entity", "user"} {
		assert.NotNil(t, agentRunCmd.Flags().Lookup(name), "agent run --%s", name)
	}
	for _, name := range []string{"org", "type", "limit", "json"} {
		assert.NotNil(t, runsListCmd.Flags().Lookup(name), "runs list --%s", name)
	}
	assert.Equal(t, "50", runsListCmd.Flags().Lookup("limit").DefValue)
}

func TestRootCommand_UseAndShort(t *testing.T) {
	assert.Equal(t, "lumina", rootCmd.Use)
	assert.Equal(t, "AI agents for small business operations", rootCmd.Short)
}

func TestPackageLevelTracer_IsNotNil(t *testing.T) {
	assert.NotNil(t, tracer, "package-level tracer should be initialized")
}

func TestProviderConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.Config
		wantBaseURL string
		wantKey     string
	}{
		{
			name:        "openai uses its base url",
			cfg:         config.Config{LLMProvider: config.ProviderOpenAI, OpenAIAPIKey: "sk-1", OpenAIBaseURL: "http://openai.local"},
			wantBaseURL: "http://openai.local",
			wantKey:     "sk-1",
		},
		{
			name:        "openrouter uses its base url",
			cfg:         config.Config{LLMProvider: config.ProviderOpenRouter, OpenRouterAPIKey: "or-1", OpenRouterBaseURL: "http://router.local"},
			wantBaseURL: "http://router.local",
			wantKey:     "or-1",
		},
		{
			name: "offline has no base url",
			cfg:  config.Config{LLMProvider: config.ProviderOffline, OpenAIBaseURL: "http://openai.local"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := providerConfig(&tt.cfg)
			assert.Equal(t, tt.cfg.LLMProvider, pc.Name)
			assert.Equal(t, tt.wantBaseURL, pc.BaseURL)
			assert.Equal(t, tt.wantKey, pc.APIKey)
		})
	}
}

func TestLoadPolicy_Empty(t *testing.T) {
	pol, err := loadPolicy(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, pol)
}

func TestLoadPolicy_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumina.policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 1.0.0
plans:
  free:
    allowed_agents: [customer_support]
`), 0o600))

	pol, err := loadPolicy(context.Background(), &config.Config{PolicyFile: path, StrictPolicy: true})
	require.NoError(t, err)
	require.NotNil(t, pol)
	assert.Contains(t, pol.VersionTag, "1.0.0")

	_, err = loadPolicy(context.Background(), &config.Config{PolicyFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorContains(t, err, "loading policy")
}

func TestParseInput(t *testing.T) {
	in, err := parseInput(`{"action":"score_lead","leadId":"lead_1"}`)
	require.NoError(t, err)
	assert.Equal(t, "score_lead", in["action"])

	for _, raw := range []string{"", "null", "[1,2]", "{broken"} {
		_, err := parseInput(raw)
		assert.Error(t, err, "input %q", raw)
	}
}

func TestRenderAgents(t *testing.T) {
	var buf bytes.Buffer
	renderAgents(&buf, agent.Types())
	out := buf.String()

	assert.Contains(t, out, "customer_support")
	assert.Contains(t, out, "analyze_sentiment, generate_response, suggest_solution")
	assert.Contains(t, out, "(links "+store.LinkLead+")")
	assert.Equal(t, 8, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestRenderRuns(t *testing.T) {
	var buf bytes.Buffer
	renderRuns(&buf, nil)
	assert.Equal(t, "No runs recorded.\n", buf.String())

	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	done := started.Add(400 * time.Millisecond)
	buf.Reset()
	renderRuns(&buf, []store.AgentRun{
		{ID: "run_1", AgentType: "financial", Status: store.RunCompleted, StartedAt: started, CompletedAt: &done},
		{ID: "run_2", AgentType: "marketing", Status: store.RunRunning, StartedAt: started},
	})
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "2026-03-01 09:30:00")
	assert.Contains(t, out, "400ms")
	assert.Contains(t, out, "running")
}

func TestRenderRun(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	done := started.Add(2 * time.Second)
	var buf bytes.Buffer
	err := renderRun(&buf, &store.AgentRun{
		ID:          "run_1",
		AgentType:   "sales_lead",
		Status:      store.RunCompleted,
		StartedAt:   started,
		CompletedAt: &done,
		LeadID:      "lead_9",
		Reasoning:   "Strong budget signal",
		Output:      map[string]any{"score": 82},
		Logs:        []store.AgentLog{{Level: "info", Message: "scored lead"}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Lead:     lead_9")
	assert.NotContains(t, out, "Ticket:")
	assert.Contains(t, out, `"score": 82`)
	assert.Contains(t, out, "[INFO] scored lead")
	assert.Contains(t, out, "Duration: 2s")
}

func TestRenderSeed(t *testing.T) {
	var buf bytes.Buffer
	renderSeed(&buf, &store.SeedResult{
		OrganizationID: "org_demo",
		TicketIDs:      []string{"t1", "t2"},
		LeadIDs:        []string{"l1"},
	})
	out := buf.String()
	assert.Contains(t, out, store.DemoEmail)
	assert.Contains(t, out, "Tickets:      2")
	assert.Contains(t, out, "--org org_demo")
}

func TestRenderDoctor(t *testing.T) {
	var buf bytes.Buffer
	renderDoctor(&buf, &doctor.Report{
		Status: doctor.StatusWarn,
		Checks: []doctor.CheckResult{
			{Name: "database", Status: doctor.StatusPass, Message: "ok", Fix: "unused"},
			{Name: "secrets_key", Status: doctor.StatusWarn, Message: "Not set", Fix: "Set LUMINA_SECRETS_KEY"},
		},
		Summary: doctor.Summary{Pass: 1, Warn: 1},
	})
	out := buf.String()
	assert.Contains(t, out, "\u2713 database")
	assert.Contains(t, out, "\u26a0 secrets_key")
	assert.Contains(t, out, "fix: Set LUMINA_SECRETS_KEY")
	assert.NotContains(t, out, "unused")
	assert.Contains(t, out, "1 passed, 1 warnings, 0 failed")
}
