package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Wildcard in AllowedAgents admits every agent type.
const Wildcard = "*"

// Policy is a lumina.policy.yaml document: which agents and actions each
// organization plan may run.
type Policy struct {
	Version     string               `yaml:"version" json:"version"`
	DefaultPlan string               `yaml:"default_plan,omitempty" json:"default_plan,omitempty"`
	Plans       map[string]PlanRules `yaml:"plans" json:"plans"`

	// Computed fields (not serialized from YAML)
	Hash       string `yaml:"-" json:"-"`
	VersionTag string `yaml:"-" json:"-"`
}

// PlanRules is the agent access granted to one plan.
type PlanRules struct {
	AllowedAgents []string `yaml:"allowed_agents" json:"allowed_agents"`
	DeniedActions []string `yaml:"denied_actions,omitempty" json:"denied_actions,omitempty"`
}

// DefaultPolicy grants every agent to the free, pro and enterprise plans.
func DefaultPolicy() *Policy {
	all := PlanRules{AllowedAgents: []string{Wildcard}}
	p := &Policy{
		Version:     "1.0.0",
		DefaultPlan: "free",
		Plans: map[string]PlanRules{
			"free":       all,
			"pro":        all,
			"enterprise": all,
		},
	}
	p.ComputeHash([]byte("builtin"))
	return p
}

// ComputeHash generates SHA-256 hash of policy content and sets
// the VersionTag to "{version}:sha256:{first8chars}".
func (p *Policy) ComputeHash(content []byte) {
	hash := sha256.Sum256(content)
	p.Hash = hex.EncodeToString(hash[:])
	p.VersionTag = fmt.Sprintf("%s:sha256:%s", p.Version, p.Hash[:8])
}

// applyDefaults fills in optional fields.
func applyDefaults(p *Policy) {
	if p.DefaultPlan == "" {
		p.DefaultPlan = "free"
	}
	if p.Plans == nil {
		p.Plans = map[string]PlanRules{}
	}
}
