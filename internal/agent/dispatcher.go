package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	luminaotel "github.com/Navneet-55/msmesolut/internal/otel"
	"github.com/Navneet-55/msmesolut/internal/store"
)

// ListRuns limits.
const (
	DefaultRunLimit = 50
	MaxRunLimit     = 100
)

// RunStore persists run records.
type RunStore interface {
	CreateRun(ctx context.Context, nr store.NewRun) (*store.AgentRun, error)
	CompleteRun(ctx context.Context, id string, output map[string]any, reasoning string, metadata map[string]any) error
	FailRun(ctx context.Context, id, message string, data map[string]any) error
	LinkEntity(ctx context.Context, runID, column, entityID string) error
	ListRuns(ctx context.Context, f store.RunFilter) ([]store.AgentRun, error)
	GetRun(ctx context.Context, organizationID, id string) (*store.AgentRun, error)
}

// AccessPolicy decides whether an organization on a plan may run an agent
// action. reason explains a denial.
type AccessPolicy interface {
	AllowAgent(ctx context.Context, plan, agentType, action string) (allowed bool, reason string, err error)
}

// Dispatcher runs agents and records every invocation.
type Dispatcher struct {
	registry *Registry
	runs     RunStore
	policy   AccessPolicy
	sanitize func(map[string]any) map[string]any
	breaker  *CircuitBreaker
	hooks    *HookRegistry
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAccessPolicy gates runs on p before a record is created.
func WithAccessPolicy(p AccessPolicy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = p }
}

// WithSanitizer rewrites run inputs before they are stored or executed.
func WithSanitizer(fn func(map[string]any) map[string]any) DispatcherOption {
	return func(d *Dispatcher) { d.sanitize = fn }
}

// WithCircuitBreaker suspends an agent for an organization after repeated
// execution failures.
func WithCircuitBreaker(cb *CircuitBreaker) DispatcherOption {
	return func(d *Dispatcher) { d.breaker = cb }
}

// WithHooks fires run lifecycle hooks from h.
func WithHooks(h *HookRegistry) DispatcherOption {
	return func(d *Dispatcher) { d.hooks = h }
}

// NewDispatcher creates a dispatcher over an immutable registry.
func NewDispatcher(registry *Registry, runs RunStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{registry: registry, runs: runs}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher resolves agents from.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// RunRequest is one agent invocation.
type RunRequest struct {
	OrganizationID string
	Plan           string // organization plan, consulted by the access policy
	UserID         string
	AgentType      string
	Input          map[string]any
	EntityID       string
}

// RunResult is the outcome of a successful run.
type RunResult struct {
	ID        string         `json:"id"`
	Output    map[string]any `json:"output"`
	Reasoning string         `json:"reasoning,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Run executes one agent invocation:
//  1. resolve the agent type (no record on failure)
//  2. consult the access policy and circuit breaker (no record on failure)
//  3. create the run record in the running state
//  4. execute the agent
//  5. complete the record and link the entity, or fail it with one error log
//
// Every failure after step 3 is returned as *ExecutionError carrying the run id.
func (d *Dispatcher) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	t, err := ParseType(req.AgentType)
	if err != nil {
		return nil, err
	}
	ag, ok := d.registry.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgentType, t)
	}

	raw := req.Input
	if d.sanitize != nil {
		raw = d.sanitize(raw)
	}
	in := NewInput(raw)

	ctx, span := tracer.Start(ctx, "agent.dispatch",
		trace.WithAttributes(luminaotel.RunAttributes(req.OrganizationID, string(t), in.Action)...))
	defer span.End()

	if d.policy != nil {
		allowed, reason, err := d.policy.AllowAgent(ctx, req.Plan, string(t), in.Action)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("evaluating agent access: %w", err)
		}
		if !allowed {
			log.Warn().
				Str("organization_id", req.OrganizationID).
				Str("agent_type", string(t)).
				Str("action", in.Action).
				Str("reason", reason).
				Msg("agent_run_denied")
			span.SetStatus(codes.Error, "policy denied")
			return nil, fmt.Errorf("%w: %s", ErrPolicyDenied, reason)
		}
	}
	if d.breaker != nil {
		if err := d.breaker.Check(req.OrganizationID, t); err != nil {
			span.SetStatus(codes.Error, "circuit open")
			return nil, err
		}
	}
	hook := HookData{OrganizationID: req.OrganizationID, AgentType: string(t), Action: in.Action}
	if d.hooks != nil {
		res, err := d.hooks.Execute(ctx, HookPreRun, &hook)
		if err != nil {
			d.releaseTrial(req.OrganizationID, t)
			return nil, fmt.Errorf("running pre-run hooks: %w", err)
		}
		if !res.Continue {
			d.releaseTrial(req.OrganizationID, t)
			span.SetStatus(codes.Error, "aborted by hook")
			return nil, fmt.Errorf("%w: aborted by pre_run hook", ErrPolicyDenied)
		}
	}

	run, err := d.runs.CreateRun(ctx, store.NewRun{
		OrganizationID: req.OrganizationID,
		AgentType:      string(t),
		UserID:         req.UserID,
		Input:          raw,
	})
	if err != nil {
		d.releaseTrial(req.OrganizationID, t)
		span.RecordError(err)
		return nil, fmt.Errorf("creating run: %w", err)
	}
	span.SetAttributes(luminaotel.RunID.String(run.ID))
	hook.RunID = run.ID

	logger := log.With().
		Str("run_id", run.ID).
		Str("organization_id", req.OrganizationID).
		Str("agent_type", string(t)).
		Str("action", in.Action).
		Str("user_id", req.UserID).
		Logger()
	logger.Info().Func(luminaotel.LogTraceFields(ctx)).Msg("agent_run_started")
	start := time.Now()

	result, execErr := d.execute(ctx, ag, req.OrganizationID, in)

	// Terminal writes must land even if the caller went away mid-run.
	persistCtx := context.WithoutCancel(ctx)

	if execErr != nil {
		d.recordOutcome(req.OrganizationID, t, execErr)
		if err := d.runs.FailRun(persistCtx, run.ID, execErr.Error(), map[string]any{"action": in.Action}); err != nil {
			logger.Error().Err(err).Msg("agent_run_fail_record_failed")
		}
		recordRun(ctx, t, store.RunFailed)
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
		span.SetAttributes(luminaotel.RunStatus.String(store.RunFailed))
		logger.Error().Err(execErr).Dur("duration", time.Since(start)).Msg("agent_run_failed")
		d.fire(persistCtx, HookRunFailed, &hook, map[string]any{"error": execErr.Error()})
		return nil, &ExecutionError{RunID: run.ID, Err: execErr}
	}
	d.recordOutcome(req.OrganizationID, t, nil)

	if err := d.runs.CompleteRun(persistCtx, run.ID, result.Output, result.Reasoning, result.Metadata); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("completing run %s: %w", run.ID, err)
	}
	if field := t.EntityField(); req.EntityID != "" && field != "" {
		if err := d.runs.LinkEntity(persistCtx, run.ID, field, req.EntityID); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("linking run %s: %w", run.ID, err)
		}
	}

	recordRun(ctx, t, store.RunCompleted)
	span.SetAttributes(luminaotel.RunStatus.String(store.RunCompleted))
	logger.Info().Dur("duration", time.Since(start)).Msg("agent_run_completed")
	d.fire(persistCtx, HookRunCompleted, &hook, map[string]any{"output": result.Output})

	return &RunResult{
		ID:        run.ID,
		Output:    result.Output,
		Reasoning: result.Reasoning,
		Metadata:  result.Metadata,
	}, nil
}

func (d *Dispatcher) execute(ctx context.Context, ag Agent, organizationID string, in Input) (*Result, error) {
	ctx, span := tracer.Start(ctx, "agent.execute",
		trace.WithAttributes(attribute.String("agent.action", in.Action)))
	defer span.End()

	res, err := ag.Execute(ctx, organizationID, in)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if res == nil {
		return nil, errors.New("agent returned no result")
	}
	if res.Output == nil {
		res.Output = map[string]any{}
	}
	return res, nil
}

func (d *Dispatcher) fire(ctx context.Context, point HookPoint, data *HookData, payload map[string]any) {
	if d.hooks == nil {
		return
	}
	if b, err := json.Marshal(payload); err == nil {
		data.Payload = b
	}
	_, _ = d.hooks.Execute(ctx, point, data)
}

// releaseTrial is called on every return between a passed breaker check and
// the agent executing.
func (d *Dispatcher) releaseTrial(organizationID string, t Type) {
	if d.breaker != nil {
		d.breaker.Release(organizationID, t)
	}
}

func (d *Dispatcher) recordOutcome(organizationID string, t Type, err error) {
	if d.breaker == nil {
		return
	}
	if err != nil && !callerError(err) {
		d.breaker.RecordFailure(organizationID, t)
		return
	}
	d.breaker.RecordSuccess(organizationID, t)
}

// ListRuns returns the organization's runs newest first. limit 0 selects
// DefaultRunLimit; other values are clamped to [1, MaxRunLimit]. An empty
// agentType lists every type.
func (d *Dispatcher) ListRuns(ctx context.Context, organizationID, agentType string, limit int) ([]store.AgentRun, error) {
	if agentType != "" {
		if _, err := ParseType(agentType); err != nil {
			return nil, err
		}
	}
	return d.runs.ListRuns(ctx, store.RunFilter{
		OrganizationID: organizationID,
		AgentType:      agentType,
		Limit:          ClampLimit(limit),
	})
}

// ClampLimit applies the ListRuns limit rules.
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultRunLimit
	}
	return min(max(1, limit), MaxRunLimit)
}

// GetRun returns one run with its logs, or (nil, nil) when the organization
// has no such run.
func (d *Dispatcher) GetRun(ctx context.Context, organizationID, id string) (*store.AgentRun, error) {
	run, err := d.runs.GetRun(ctx, organizationID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

var (
	runCounter     metric.Int64Counter
	runMetricsOnce sync.Once
)

func recordRun(ctx context.Context, t Type, status string) {
	runMetricsOnce.Do(func() {
		c, err := luminaotel.Meter("github.com/Navneet-55/msmesolut/internal/agent").Int64Counter(
			"lumina.agent.runs",
			metric.WithDescription("Agent runs by type and terminal status"),
		)
		if err == nil {
			runCounter = c
		}
	})
	if runCounter == nil {
		return
	}
	runCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_type", string(t)),
		attribute.String("status", status),
	))
}
