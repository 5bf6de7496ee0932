package tenant

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Navneet-55/msmesolut/internal/store"
	"github.com/Navneet-55/msmesolut/internal/testutil"
)

func TestManager_AllowRateLimit(t *testing.T) {
	m := NewManager([]Tenant{{ID: "acme", RateLimit: 1}})

	// burst of two, then the bucket is empty
	require.NoError(t, m.Allow("acme"))
	require.NoError(t, m.Allow("acme"))
	assert.ErrorIs(t, m.Allow("acme"), ErrRateLimitExceeded)

	// other organizations are unaffected
	assert.NoError(t, m.Allow("other"))
}

func TestManager_DefaultRateLimit(t *testing.T) {
	m := NewManager(nil, WithDefaultRateLimit(1))
	require.NoError(t, m.Allow("org_x"))
	require.NoError(t, m.Allow("org_x"))
	assert.ErrorIs(t, m.Allow("org_x"), ErrRateLimitExceeded)
}

func TestManager_NoLimit(t *testing.T) {
	m := NewManager([]Tenant{{ID: "acme"}})
	for i := 0; i < 100; i++ {
		require.NoError(t, m.Allow("acme"))
	}
}

func TestManager_Plan(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	require.NoError(t, s.CreateOrganization(ctx, &store.Organization{ID: testutil.TestOrgID, Name: "Acme", Plan: "pro"}))
	require.NoError(t, s.CreateOrganization(ctx, &store.Organization{ID: testutil.TestOtherOrgID, Name: "Other", Plan: "pro"}))

	m := NewManager([]Tenant{{ID: testutil.TestOtherOrgID, Plan: "enterprise"}}, WithOrganizations(s))

	plan, err := m.Plan(ctx, testutil.TestOrgID)
	require.NoError(t, err)
	assert.Equal(t, "pro", plan)

	plan, err = m.Plan(ctx, testutil.TestOtherOrgID)
	require.NoError(t, err)
	assert.Equal(t, "enterprise", plan)

	plan, err = m.Plan(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, plan)
}

type fixedCounter int

func (c fixedCounter) CountRunsSince(context.Context, string, time.Time) (int, error) {
	return int(c), nil
}

func TestManager_CheckRunQuota(t *testing.T) {
	tenants := []Tenant{{ID: "acme", DailyRunLimit: 3}, {ID: "free"}}

	m := NewManager(tenants, WithRunCounter(fixedCounter(2)))
	assert.NoError(t, m.CheckRunQuota(context.Background(), "acme"))

	m = NewManager(tenants, WithRunCounter(fixedCounter(3)))
	assert.ErrorIs(t, m.CheckRunQuota(context.Background(), "acme"), ErrDailyRunLimitExceeded)
	assert.NoError(t, m.CheckRunQuota(context.Background(), "free"))
	assert.NoError(t, m.CheckRunQuota(context.Background(), "unknown"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumina.tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tenants:
  - id: org_demo
    name: Demo Co
    plan: pro
    rate_limit: 5
    daily_run_limit: 200
    schedules:
      - cron: "0 8 * * 1"
        agent_type: financial
        input:
          action: analyze_cash_flow
        description: Monday cash review
      - cron: "@daily"
        agent_type: sales_lead
        input:
          action: score_lead
          leadId: lead_1
        entity_id: lead_1
`), 0o600))

	tenants, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	tn := tenants[0]
	assert.Equal(t, "pro", tn.Plan)
	assert.Equal(t, 5, tn.RateLimit)
	assert.Equal(t, 200, tn.DailyRunLimit)
	require.Len(t, tn.Schedules, 2)
	assert.Equal(t, "analyze_cash_flow", tn.Schedules[0].Input["action"])
	assert.Equal(t, "lead_1", tn.Schedules[1].EntityID)
}

func TestLoadFile_Missing(t *testing.T) {
	tenants, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing id", "tenants:\n  - name: x\n", "id is required"},
		{"duplicate", "tenants:\n  - id: a\n  - id: a\n", "declared twice"},
		{"negative limit", "tenants:\n  - id: a\n    rate_limit: -1\n", "must not be negative"},
		{"unknown agent", "tenants:\n  - id: a\n    schedules:\n      - cron: '@daily'\n        agent_type: astrology\n        input: {action: x}\n", "unknown agent type"},
		{"missing action", "tenants:\n  - id: a\n    schedules:\n      - cron: '@daily'\n        agent_type: financial\n        input: {}\n", "input.action is required"},
		{"missing cron", "tenants:\n  - id: a\n    schedules:\n      - agent_type: financial\n        input: {action: x}\n", "cron is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
