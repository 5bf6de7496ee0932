package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Navneet-55/msmesolut/internal/agent"
	"github.com/Navneet-55/msmesolut/internal/tenant"
)

// opencensus starts its view worker from an init func in a transitive dependency.
var ignoreOpenCensus = goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, ignoreOpenCensus)
}

type mockRunner struct {
	mu   sync.Mutex
	reqs []agent.RunRequest
	err  error
}

func (m *mockRunner) Run(_ context.Context, req agent.RunRequest) (*agent.RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return &agent.RunResult{ID: "run_1"}, nil
}

type stubAdmission struct {
	plan     string
	quotaErr error
}

func (a stubAdmission) CheckRunQuota(context.Context, string) error { return a.quotaErr }

func (a stubAdmission) Plan(context.Context, string) (string, error) { return a.plan, nil }

var weekly = tenant.Schedule{
	Cron:        "0 8 * * 1",
	AgentType:   "financial",
	Input:       map[string]any{"action": "analyze_cash_flow"},
	Description: "Monday cash review",
}

func TestRegisterTenants_AddsEntries(t *testing.T) {
	sched := NewScheduler(&mockRunner{})
	err := sched.RegisterTenants([]tenant.Tenant{
		{ID: "org_a", Schedules: []tenant.Schedule{weekly, {Cron: "@daily", AgentType: "marketing", Input: map[string]any{"action": "generate_content"}}}},
		{ID: "org_b"},
		{ID: "org_c", Schedules: []tenant.Schedule{weekly}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sched.Entries())
}

func TestRegisterTenants_InvalidCron(t *testing.T) {
	sched := NewScheduler(&mockRunner{})
	err := sched.RegisterTenants([]tenant.Tenant{
		{ID: "org_a", Schedules: []tenant.Schedule{{Cron: "not a valid cron", AgentType: "financial"}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "org_a")
}

func TestFire_RunsForOrganization(t *testing.T) {
	runner := &mockRunner{}
	sched := NewScheduler(runner, WithAdmission(stubAdmission{plan: "pro"}))

	s := weekly
	s.EntityID = "camp_1"
	require.NoError(t, sched.fire(context.Background(), "org_a", s))

	require.Len(t, runner.reqs, 1)
	req := runner.reqs[0]
	assert.Equal(t, "org_a", req.OrganizationID)
	assert.Equal(t, "financial", req.AgentType)
	assert.Equal(t, "pro", req.Plan)
	assert.Equal(t, "camp_1", req.EntityID)
	assert.Empty(t, req.UserID)
	assert.Equal(t, "analyze_cash_flow", req.Input["action"])

	// each run gets its own copy of the input
	req.Input["action"] = "changed"
	assert.Equal(t, "analyze_cash_flow", weekly.Input["action"])
}

func TestFire_QuotaExceededSkipsRun(t *testing.T) {
	runner := &mockRunner{}
	sched := NewScheduler(runner, WithAdmission(stubAdmission{quotaErr: tenant.ErrDailyRunLimitExceeded}))

	err := sched.fire(context.Background(), "org_a", weekly)
	assert.ErrorIs(t, err, tenant.ErrDailyRunLimitExceeded)
	assert.Empty(t, runner.reqs)
}

func TestFire_RunFailure(t *testing.T) {
	runner := &mockRunner{err: &agent.ExecutionError{RunID: "run_9", Err: errors.New("upstream unavailable")}}
	sched := NewScheduler(runner)

	err := sched.fire(context.Background(), "org_a", weekly)
	var execErr *agent.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "run_9", execErr.RunID)
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	sched := NewScheduler(&mockRunner{})
	require.NoError(t, sched.RegisterTenants([]tenant.Tenant{{ID: "org_a", Schedules: []tenant.Schedule{weekly}}}))
	sched.Start()
	sched.Stop()
}
