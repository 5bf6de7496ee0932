// Package policy gates agent runs on the organization's plan using embedded
// OPA Rego evaluated against a lumina.policy.yaml document.
package policy

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed rego/*.rego
var embeddedPolicies embed.FS

const (
	agentAccessFile  = "rego/agent_access.rego"
	agentAccessQuery = "data.lumina.policy.agent_access.deny"
)

// Decision represents the result of policy evaluation.
type Decision struct {
	Allowed       bool     `json:"allowed"`
	Action        string   `json:"action"` // "allow" or "deny"
	Reasons       []string `json:"reasons,omitempty"`
	PolicyVersion string   `json:"policy_version"`
}

// Engine evaluates agent access using embedded OPA.
type Engine struct {
	policy   *Policy
	prepared rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with the Rego query precompiled.
// The provided Policy is serialized to JSON and loaded as OPA data.
func NewEngine(ctx context.Context, pol *Policy) (*Engine, error) {
	ctx, span := tracer.Start(ctx, "policy.engine.new")
	defer span.End()

	if pol == nil {
		pol = DefaultPolicy()
	}
	policyData, err := policyToData(pol)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("converting policy to OPA data: %w", err)
	}

	content, err := embeddedPolicies.ReadFile(agentAccessFile)
	if err != nil {
		return nil, fmt.Errorf("reading embedded policy %s: %w", agentAccessFile, err)
	}
	r := rego.New(
		rego.Query(agentAccessQuery),
		rego.Module(agentAccessFile, string(content)),
		rego.Store(inmem.NewFromObject(map[string]interface{}{"policy": policyData})),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("preparing Rego policy %s: %w", agentAccessFile, err)
	}

	return &Engine{policy: pol, prepared: prepared}, nil
}

// Policy returns the document the engine evaluates.
func (e *Engine) Policy() *Policy { return e.policy }

// EvaluateAgentAccess decides whether plan may run action on agentType. An
// empty plan evaluates as the policy's default plan.
func (e *Engine) EvaluateAgentAccess(ctx context.Context, plan, agentType, action string) (*Decision, error) {
	if plan == "" {
		plan = e.policy.DefaultPlan
	}
	ctx, span := tracer.Start(ctx, "policy.evaluate_agent_access",
		trace.WithAttributes(
			attribute.String("policy.version", e.policy.VersionTag),
			attribute.String("organization.plan", plan),
			attribute.String("agent.type", agentType),
			attribute.String("agent.action", action),
		))
	defer span.End()

	reasons, err := e.evaluateDenyReasons(ctx, map[string]interface{}{
		"plan":       plan,
		"agent_type": agentType,
		"action":     action,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	decision := &Decision{
		Allowed:       len(reasons) == 0,
		Action:        "allow",
		Reasons:       reasons,
		PolicyVersion: e.policy.VersionTag,
	}
	if !decision.Allowed {
		decision.Action = "deny"
	}

	span.SetAttributes(
		attribute.Bool("policy.allowed", decision.Allowed),
		attribute.Int("policy.deny_reasons", len(decision.Reasons)),
	)
	if decision.Allowed {
		span.SetStatus(codes.Ok, "policy evaluation passed")
	}
	return decision, nil
}

// AllowAgent adapts EvaluateAgentAccess to the dispatcher's access check.
func (e *Engine) AllowAgent(ctx context.Context, plan, agentType, action string) (bool, string, error) {
	d, err := e.EvaluateAgentAccess(ctx, plan, agentType, action)
	if err != nil {
		return false, "", err
	}
	return d.Allowed, strings.Join(d.Reasons, "; "), nil
}

// evaluateDenyReasons runs the prepared query, which yields a set of deny
// reason strings.
func (e *Engine) evaluateDenyReasons(ctx context.Context, input map[string]interface{}) ([]string, error) {
	results, err := e.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", agentAccessFile, err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	// OPA returns the set as []interface{} or, occasionally, map[string]interface{}.
	var reasons []string
	switch v := results[0].Expressions[0].Value.(type) {
	case []interface{}:
		for _, msg := range v {
			if s, ok := msg.(string); ok {
				reasons = append(reasons, s)
			}
		}
	case map[string]interface{}:
		for _, msg := range v {
			if s, ok := msg.(string); ok {
				reasons = append(reasons, s)
			}
		}
	}
	sort.Strings(reasons)
	return reasons, nil
}

// policyToData converts a Policy struct to map[string]interface{} for OPA.
func policyToData(pol *Policy) (map[string]interface{}, error) {
	jsonBytes, err := json.Marshal(pol)
	if err != nil {
		return nil, fmt.Errorf("marshalling policy: %w", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return nil, fmt.Errorf("unmarshalling policy data: %w", err)
	}
	return data, nil
}
