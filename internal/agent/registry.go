package agent

import (
	"fmt"

	"github.com/Navneet-55/msmesolut/internal/llm"
)

// Registry maps every Type to its Agent. It is built once and never mutated,
// so it is safe to share across goroutines.
type Registry struct {
	agents map[Type]Agent
}

// NewRegistry builds a registry from agents. Every declared Type must be
// covered exactly once.
func NewRegistry(agents ...Agent) (*Registry, error) {
	m := make(map[Type]Agent, len(agents))
	for _, a := range agents {
		t := a.Type()
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAgentType, t)
		}
		if _, dup := m[t]; dup {
			return nil, fmt.Errorf("agent %s registered twice", t)
		}
		m[t] = a
	}
	for _, t := range allTypes {
		if _, ok := m[t]; !ok {
			return nil, fmt.Errorf("no agent registered for %s", t)
		}
	}
	return &Registry{agents: m}, nil
}

// BuildRegistry wires the eight domain agents to data and caps.
func BuildRegistry(data DataStore, caps *llm.Capabilities) (*Registry, error) {
	return NewRegistry(
		NewCustomerSupportAgent(data, caps),
		NewMarketingAgent(data, caps),
		NewFinancialAgent(data, caps),
		NewSupplyChainAgent(data, caps),
		NewOnboardingAgent(data, caps),
		NewCompetitiveAgent(data, caps),
		NewDataIntegrationAgent(data, caps),
		NewSalesLeadAgent(data, caps),
	)
}

// Lookup returns the agent for t.
func (r *Registry) Lookup(t Type) (Agent, bool) {
	a, ok := r.agents[t]
	return a, ok
}

// Types returns the registered types in declaration order.
func (r *Registry) Types() []Type {
	return Types()
}

// Descriptor documents one agent for listings.
type Descriptor struct {
	Type        Type     `json:"type"`
	Actions     []Action `json:"actions"`
	EntityField string   `json:"entityField,omitempty"`
}

// Describe lists every registered agent with its actions.
func (r *Registry) Describe() []Descriptor {
	out := make([]Descriptor, 0, len(r.agents))
	for _, t := range allTypes {
		out = append(out, Descriptor{Type: t, Actions: t.Actions(), EntityField: t.EntityField()})
	}
	return out
}
