package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy() *Policy {
	pol := &Policy{
		Version:     "1.0.0",
		DefaultPlan: "free",
		Plans: map[string]PlanRules{
			"free": {
				AllowedAgents: []string{"customer_support", "marketing"},
				DeniedActions: []string{"optimize_campaign"},
			},
			"pro": {AllowedAgents: []string{Wildcard}},
		},
	}
	pol.ComputeHash([]byte("test"))
	return pol
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(context.Background(), newTestPolicy())
	require.NoError(t, err)
	assert.Equal(t, "free", engine.Policy().DefaultPlan)
}

func TestEvaluateAgentAccess(t *testing.T) {
	engine, err := NewEngine(context.Background(), newTestPolicy())
	require.NoError(t, err)

	tests := []struct {
		name      string
		plan      string
		agentType string
		action    string
		allowed   bool
		reason    string
	}{
		{"listed agent", "free", "customer_support", "analyze_sentiment", true, ""},
		{"unlisted agent", "free", "financial", "analyze_cash_flow", false, "plan free does not include the financial agent"},
		{"denied action", "free", "marketing", "optimize_campaign", false, "action optimize_campaign is not available on plan free"},
		{"wildcard plan", "pro", "supply_chain", "suggest_reorder", true, ""},
		{"unknown plan", "gold", "marketing", "generate_content", false, "plan gold is not configured"},
		{"empty plan uses default", "", "financial", "analyze_cash_flow", false, "plan free does not include the financial agent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := engine.EvaluateAgentAccess(context.Background(), tt.plan, tt.agentType, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, engine.Policy().VersionTag, d.PolicyVersion)
			if tt.allowed {
				assert.Equal(t, "allow", d.Action)
				assert.Empty(t, d.Reasons)
				return
			}
			assert.Equal(t, "deny", d.Action)
			assert.Contains(t, d.Reasons, tt.reason)
		})
	}
}

func TestAllowAgent_JoinsReasons(t *testing.T) {
	pol := newTestPolicy()
	pol.Plans["free"] = PlanRules{AllowedAgents: []string{"customer_support"}, DeniedActions: []string{"create_campaign"}}
	engine, err := NewEngine(context.Background(), pol)
	require.NoError(t, err)

	allowed, reason, err := engine.AllowAgent(context.Background(), "free", "marketing", "create_campaign")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, "action create_campaign is not available on plan free; plan free does not include the marketing agent", reason)
}

func TestDefaultPolicyAllowsEverything(t *testing.T) {
	engine, err := NewEngine(context.Background(), nil)
	require.NoError(t, err)

	for _, plan := range []string{"", "free", "pro", "enterprise"} {
		allowed, reason, err := engine.AllowAgent(context.Background(), plan, "sales_lead", "score_lead")
		require.NoError(t, err)
		assert.True(t, allowed, plan)
		assert.Empty(t, reason)
	}
}
