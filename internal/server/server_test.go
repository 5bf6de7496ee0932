package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Navneet-55/msmesolut/internal/agent"
	"github.com/Navneet-55/msmesolut/internal/llm"
	"github.com/Navneet-55/msmesolut/internal/policy"
	"github.com/Navneet-55/msmesolut/internal/secrets"
	"github.com/Navneet-55/msmesolut/internal/store"
	"github.com/Navneet-55/msmesolut/internal/tenant"
	"github.com/Navneet-55/msmesolut/internal/testutil"
)

type testEnv struct {
	handler  http.Handler
	store    *store.Store
	provider *testutil.ScriptedProvider
}

type envConfig struct {
	dispatcherOpts []agent.DispatcherOption
	serverOpts     []Option
}

func newTestEnv(t *testing.T, configure ...func(*envConfig)) *testEnv {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.CreateOrganization(ctx, &store.Organization{ID: testutil.TestOrgID, Name: "Acme", Slug: "acme", Plan: "free"}))
	require.NoError(t, s.CreateOrganization(ctx, &store.Organization{ID: testutil.TestOtherOrgID, Name: "Other", Slug: "other", Plan: "free"}))

	p := &testutil.ScriptedProvider{}
	reg, err := agent.BuildRegistry(s, llm.NewCapabilities(p, "test-model"))
	require.NoError(t, err)

	var cfg envConfig
	for _, fn := range configure {
		fn(&cfg)
	}
	d := agent.NewDispatcher(reg, s, cfg.dispatcherOpts...)
	srv := NewServer(d, s, map[string]string{
		testutil.TestAPIKey: testutil.TestOrgID,
		"other-org-key":     testutil.TestOtherOrgID,
	}, cfg.serverOpts...)
	return &testEnv{handler: srv.Routes(), store: s, provider: p}
}

func (e *testEnv) do(t *testing.T, method, path, key string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

var cashFlowRun = map[string]any{
	"agentType": "financial",
	"input":     map[string]any{"action": "analyze_cash_flow"},
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, "development", out["environment"])
	db := out["checks"].(map[string]interface{})["database"].(map[string]interface{})
	assert.Equal(t, "connected", db["status"])

	rec = env.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", decode[map[string]string](t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]interface{}](t, rec)["ready"])

	rec = env.do(t, http.MethodGet, "/health/version", "", nil)
	assert.Equal(t, "Lumina AI", decode[map[string]string](t, rec)["name"])
}

func TestHealth_DatabaseDown(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Close())

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode[map[string]interface{}](t, rec)["status"])
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		key  string
	}{
		{"missing key", ""},
		{"unknown api key", "nope"},
		{"unknown session token", strings.Repeat("ab", 32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/v1/agents/runs", tt.key, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthorized", decode[map[string]string](t, rec)["error"])
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	req.Header.Set("X-Lumina-Key", testutil.TestAPIKey)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAgentsDescribe(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/agents", testutil.TestAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode[struct {
		Agents []agent.Descriptor `json:"agents"`
	}](t, rec)
	require.Len(t, out.Agents, 8)
	for _, d := range out.Agents {
		assert.Len(t, d.Actions, 3, d.Type)
	}
}

func TestAgentRun_Success(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Responses = []string{"Cash flow is stable."}

	rec := env.do(t, http.MethodPost, "/v1/agents/run", testutil.TestAPIKey, cashFlowRun)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[agent.RunResult](t, rec)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "Cash flow is stable.", res.Output["analysis"])
	assert.NotEmpty(t, res.Reasoning)

	rec = env.do(t, http.MethodGet, "/v1/agents/runs/"+res.ID, testutil.TestAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[store.AgentRun](t, rec)
	assert.Equal(t, store.RunCompleted, run.Status)
	assert.Equal(t, "financial", run.AgentType)
}

func TestAgentRun_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		body     interface{}
		status   int
		code     string
		hasRunID bool
	}{
		{"invalid json", `{"agentType":`, http.StatusBadRequest, "invalid_request", false},
		{"missing input", map[string]any{"agentType": "financial"}, http.StatusBadRequest, "invalid_request", false},
		{"unknown type", map[string]any{"agentType": "astrology", "input": map[string]any{"action": "x"}}, http.StatusBadRequest, "unknown_agent_type", false},
		{"unknown action", map[string]any{"agentType": "financial", "input": map[string]any{"action": "print_money"}}, http.StatusBadRequest, "agent_execution_failed", true},
		{"missing ticket", map[string]any{"agentType": "customer_support", "input": map[string]any{"action": "analyze_sentiment", "ticketId": "missing"}}, http.StatusNotFound, "not_found", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/agents/run", testutil.TestAPIKey, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			out := decode[map[string]string](t, rec)
			assert.Equal(t, tt.code, out["error"])
			if tt.hasRunID {
				assert.NotEmpty(t, out["run_id"])
			} else {
				assert.Empty(t, out["run_id"])
			}
		})
	}
}

func TestAgentRun_ProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Err = errors.New("upstream unavailable")

	rec := env.do(t, http.MethodPost, "/v1/agents/run", testutil.TestAPIKey, cashFlowRun)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode[map[string]string](t, rec)
	assert.Equal(t, "agent_execution_failed", out["error"])
	assert.Equal(t, "Agent execution failed: generating text: upstream unavailable", out["message"])

	rec = env.do(t, http.MethodGet, "/v1/agents/runs/"+out["run_id"], testutil.TestAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[store.AgentRun](t, rec)
	assert.Equal(t, store.RunFailed, run.Status)
	require.Len(t, run.Logs, 1)
	assert.Equal(t, "error", run.Logs[0].Level)
}

func TestAgentRun_PolicyDenied(t *testing.T) {
	pol := policy.DefaultPolicy()
	pol.Plans["free"] = policy.PlanRules{AllowedAgents: []string{"marketing"}}
	engine, err := policy.NewEngine(context.Background(), pol)
	require.NoError(t, err)

	env := newTestEnv(t, func(c *envConfig) {
		c.dispatcherOpts = append(c.dispatcherOpts, agent.WithAccessPolicy(engine))
	})

	rec := env.do(t, http.MethodPost, "/v1/agents/run", testutil.TestAPIKey, cashFlowRun)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	out := decode[map[string]string](t, rec)
	assert.Equal(t, "policy_denied", out["error"])
	assert.Contains(t, out["message"], "plan free does not include the financial agent")
	assert.Equal(t, 0, env.provider.Calls())

	rec = env.do(t, http.MethodGet, "/v1/agents/runs", testutil.TestAPIKey, nil)
	assert.Empty(t, decode[[]store.AgentRun](t, rec))
}

func TestAgentRun_CircuitOpen(t *testing.T) {
	env := newTestEnv(t, func(c *envConfig) {
		c.dispatcherOpts = append(c.dispatcherOpts, agent.WithCircuitBreaker(agent.NewCircuitBreaker(1, time.Minute)))
	})
	env.provider.Err = errors.New("upstream unavailable")

	rec := env.do(t, http.MethodPost, "/v1/agents/run", testutil.TestAPIKey, cashFlowRun)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/agents/run", testutil.TestAPIKey, cashFlowRun)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "agent_unavailable", decode[map[string]string](t, rec)["error"])
}

func TestRateLimit(t *testing.T) {
	tm := tenant.NewManager([]tenant.Tenant{{ID: testutil.TestOrgID, RateLimit: 1}})
	env := newTestEnv(t, func(c *envConfig) {
		c.serverOpts = append(c.serverOpts, WithTenantManager(tm))
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, env.do(t, http.MethodGet, "/v1/agents", testutil.TestAPIKey, nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// the other organization has its own bucket
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/agents", "other-org-key", nil).Code)
}

func TestAgentRun_DailyQuota(t *testing.T) {
	env := newTestEnv(t)
	tm := tenant.NewManager([]tenant.Tenant{{ID: testutil.TestOrgID, DailyRunLimit: 1}},
		tenant.WithRunCounter(env.store), tenant.WithOrganizations(env.store))
	reg, err := agent.BuildRegistry(env.store, llm.NewCapabilities(env.provider, "test-model"))
	require.NoError(t, err)
	env.handler = NewServer(agent.NewDispatcher(reg, env.store), env.store,
		map[string]string{testutil.TestAPIKey: testutil.TestOrgID}, WithTenantManager(tm)).Routes()

	rec := env.do(t, http.MethodPost, "/v1/agents/run", testutil.TestAPIKey, cashFlowRun)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/agents/run", testutil.TestAPIKey, cashFlowRun)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "run_quota_exceeded", decode[map[string]string](t, rec)["error"])
	assert.Equal(t, 1, env.provider.Calls())
}

func TestRunsListAndGet(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/agents/run", testutil.TestAPIKey, cashFlowRun)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[agent.RunResult](t, rec).ID

	rec = env.do(t, http.MethodGet, "/v1/agents/runs?agentType=financial&limit=10", testutil.TestAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]store.AgentRun](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	rec = env.do(t, http.MethodGet, "/v1/agents/runs?agentType=marketing", testutil.TestAPIKey, nil)
	assert.Empty(t, decode[[]store.AgentRun](t, rec))

	rec = env.do(t, http.MethodGet, "/v1/agents/runs?agentType=astrology", testutil.TestAPIKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/agents/runs?limit=ten", testutil.TestAPIKey, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// runs are invisible to other organizations
	rec = env.do(t, http.MethodGet, "/v1/agents/runs/"+id, "other-org-key", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodGet, "/v1/agents/runs", "other-org-key", nil)
	assert.Empty(t, decode[[]store.AgentRun](t, rec))

	rec = env.do(t, http.MethodGet, "/v1/agents/runs/missing", testutil.TestAPIKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[map[string]string](t, rec)["error"])
}

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": testutil.TestUserEmail, "password": testutil.TestPassword, "name": "Ada",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[authResponse](t, rec)
	assert.Equal(t, "Ada Organization", reg.Organization.Name)
	assert.Equal(t, "free", reg.Organization.Plan)

	rec = env.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": testutil.TestUserEmail, "password": testutil.TestPassword,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": testutil.TestUserEmail, "password": "wrong password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": strings.ToUpper(testutil.TestUserEmail), "password": testutil.TestPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[authResponse](t, rec)
	assert.Equal(t, reg.Organization.ID, login.Organization.ID)

	rec = env.do(t, http.MethodGet, "/v1/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]map[string]interface{}](t, rec)
	assert.Equal(t, testutil.TestUserEmail, me["user"]["email"])
	assert.Equal(t, reg.Organization.ID, me["organization"]["id"])

	// runs started with a session carry the user
	rec = env.do(t, http.MethodPost, "/v1/agents/run", login.AccessToken, cashFlowRun)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/v1/agents/runs", login.AccessToken, nil)
	runs := decode[[]store.AgentRun](t, rec)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].User)
	assert.Equal(t, "Ada", runs[0].User.Name)

	rec = env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": login.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	refreshed := decode[authResponse](t, rec)
	assert.NotEqual(t, login.AccessToken, refreshed.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/auth/me", login.AccessToken, nil).Code)

	rec = env.do(t, http.MethodPost, "/v1/auth/logout", refreshed.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/auth/me", refreshed.AccessToken, nil).Code)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []map[string]string{
		{"email": "not-an-email", "password": testutil.TestPassword},
		{"email": testutil.TestUserEmail, "password": "123"},
	} {
		rec := env.do(t, http.MethodPost, "/v1/auth/register", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestMe_APIKey(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/auth/me", testutil.TestAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[map[string]map[string]interface{}](t, rec)
	assert.Equal(t, "Acme", out["organization"]["name"])
	assert.Nil(t, out["user"])
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	n := &store.Notification{OrganizationID: testutil.TestOrgID, Type: "info", Title: "Welcome"}
	require.NoError(t, env.store.CreateNotification(ctx, n))

	rec := env.do(t, http.MethodGet, "/v1/notifications", testutil.TestAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]store.Notification](t, rec)
	require.Len(t, items, 1)
	assert.False(t, items[0].Read)

	// another organization cannot mark it
	rec = env.do(t, http.MethodPost, "/v1/notifications/"+n.ID+"/read", "other-org-key", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/notifications/"+n.ID+"/read", testutil.TestAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/notifications", testutil.TestAPIKey, nil)
	items = decode[[]store.Notification](t, rec)
	require.Len(t, items, 1)
	assert.True(t, items[0].Read)
}

func TestIntegrations(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/integrations", testutil.TestAPIKey, map[string]any{"type": "shopify"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/integrations", testutil.TestAPIKey, map[string]any{
		"name": "Storefront", "type": "shopify", "config": map[string]any{"shop": "acme"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[store.Integration](t, rec)
	assert.Equal(t, "active", created.Status)

	rec = env.do(t, http.MethodGet, "/v1/integrations", testutil.TestAPIKey, nil)
	items := decode[[]store.Integration](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "acme", items[0].Config["shop"])

	rec = env.do(t, http.MethodGet, "/v1/integrations", "other-org-key", nil)
	assert.Empty(t, decode[[]store.Integration](t, rec))
}

func TestIntegrations_SealsCredentials(t *testing.T) {
	sealer, err := secrets.NewSealer("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	env := newTestEnv(t, func(c *envConfig) {
		c.serverOpts = append(c.serverOpts, WithSealer(sealer))
	})

	rec := env.do(t, http.MethodPost, "/v1/integrations", testutil.TestAPIKey, map[string]any{
		"name": "Billing", "type": "stripe",
		"config": map[string]any{"account": "acct_1", "apiKey": "sk_live_123"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[store.Integration](t, rec)
	assert.Equal(t, secrets.Mask, created.Config["apiKey"])
	assert.Equal(t, "acct_1", created.Config["account"])

	stored, err := env.store.ListIntegrations(context.Background(), testutil.TestOrgID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	sealed, ok := stored[0].Config["apiKey"].(string)
	require.True(t, ok)
	require.True(t, secrets.IsSealed(sealed))
	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk_live_123", plain)

	rec = env.do(t, http.MethodGet, "/v1/integrations", testutil.TestAPIKey, nil)
	items := decode[[]store.Integration](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, secrets.Mask, items[0].Config["apiKey"])
}

func TestDashboardAndActivity(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/agents/run", testutil.TestAPIKey, cashFlowRun).Code)

	rec := env.do(t, http.MethodGet, "/v1/data/dashboard", testutil.TestAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[map[string]interface{}](t, rec), "financials")

	rec = env.do(t, http.MethodGet, "/v1/data/activity?page=1&limit=5", testutil.TestAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[store.ActivityPage](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Len(t, page.Items, 1)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(c *envConfig) {
		c.serverOpts = append(c.serverOpts, WithCORSOrigins([]string{"https://app.lumina.test"}))
	})
	req := httptest.NewRequest(http.MethodOptions, "/v1/agents/run", nil)
	req.Header.Set("Origin", "https://app.lumina.test")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.lumina.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Lumina-Key")
}
