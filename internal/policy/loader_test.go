package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicy(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		strict  bool
		wantErr string
	}{
		{
			name: "valid policy",
			yaml: `
version: 1.0.0
default_plan: starter
plans:
  starter:
    allowed_agents: [customer_support, marketing]
    denied_actions: [optimize_campaign]
  business:
    allowed_agents: ["*"]
`,
			strict: true,
		},
		{
			name:    "missing plans",
			yaml:    "version: 1.0.0\n",
			wantErr: "plans",
		},
		{
			name: "unknown agent type",
			yaml: `
version: 1.0.0
plans:
  free:
    allowed_agents: [astrology]
`,
			wantErr: "allowed_agents",
		},
		{
			name: "bad version",
			yaml: `
version: one
plans:
  free:
    allowed_agents: ["*"]
`,
			wantErr: "version",
		},
		{
			name: "strict undeclared default plan",
			yaml: `
version: 1.0.0
plans:
  pro:
    allowed_agents: ["*"]
`,
			strict:  true,
			wantErr: "default plan \"free\" is not declared",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "lumina.policy.yaml"), []byte(tt.yaml), 0o600))

			pol, err := LoadPolicy(context.Background(), "lumina.policy.yaml", tt.strict, dir)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "starter", pol.DefaultPlan)
			assert.Equal(t, []string{"optimize_campaign"}, pol.Plans["starter"].DeniedActions)
			assert.Regexp(t, `^1\.0\.0:sha256:[0-9a-f]{8}$`, pol.VersionTag)
		})
	}
}

func TestLoadPolicy_RejectsTraversal(t *testing.T) {
	_, err := LoadPolicy(context.Background(), "../outside.yaml", false, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside base directory")
}

func TestParsePolicy_DefaultsPlan(t *testing.T) {
	pol, err := ParsePolicy([]byte("version: 2.0.0\nplans:\n  free:\n    allowed_agents: [\"*\"]\n"), false)
	require.NoError(t, err)
	assert.Equal(t, "free", pol.DefaultPlan)

	engine, err := NewEngine(context.Background(), pol)
	require.NoError(t, err)
	allowed, _, err := engine.AllowAgent(context.Background(), "", "onboarding", "create_plan")
	require.NoError(t, err)
	assert.True(t, allowed)
}
