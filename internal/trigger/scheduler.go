// Package trigger runs agents on the cron schedules declared in the tenants file.
package trigger

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/Navneet-55/msmesolut/internal/agent"
	"github.com/Navneet-55/msmesolut/internal/tenant"
)

// runTimeout bounds one scheduled run.
const runTimeout = 30 * time.Minute

// AgentRunner executes agent runs. *agent.Dispatcher satisfies it.
type AgentRunner interface {
	Run(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error)
}

// Admission gates scheduled runs the same way the HTTP API does.
// *tenant.Manager satisfies it.
type Admission interface {
	CheckRunQuota(ctx context.Context, organizationID string) error
	Plan(ctx context.Context, organizationID string) (string, error)
}

// Scheduler manages cron-based agent execution.
type Scheduler struct {
	cron      *cron.Cron
	runner    AgentRunner
	admission Admission
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAdmission applies run quotas and plan lookup to scheduled runs.
func WithAdmission(a Admission) Option {
	return func(s *Scheduler) { s.admission = a }
}

// NewScheduler creates a scheduler backed by the given runner.
// Cron expressions use the standard 5-field format: minute hour day-of-month month day-of-week
// (e.g. "0 9 * * 1-5" for 09:00 on weekdays), plus descriptors such as "@daily".
func NewScheduler(runner AgentRunner, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:   cron.New(),
		runner: runner,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterTenants adds one cron entry per tenant schedule.
func (s *Scheduler) RegisterTenants(tenants []tenant.Tenant) error {
	for _, t := range tenants {
		for _, sched := range t.Schedules {
			orgID, sched := t.ID, sched
			_, err := s.cron.AddFunc(sched.Cron, func() {
				ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
				defer cancel()
				_ = s.fire(ctx, orgID, sched)
			})
			if err != nil {
				return fmt.Errorf("registering cron %q for organization %s: %w", sched.Cron, orgID, err)
			}
		}
	}
	return nil
}

// fire runs one schedule. Failures are logged; the returned error is for tests.
func (s *Scheduler) fire(ctx context.Context, orgID string, sched tenant.Schedule) error {
	logger := log.With().
		Str("organization_id", orgID).
		Str("agent_type", sched.AgentType).
		Str("description", sched.Description).
		Logger()
	logger.Info().Msg("scheduled_run_fired")

	req := agent.RunRequest{
		OrganizationID: orgID,
		AgentType:      sched.AgentType,
		Input:          maps.Clone(sched.Input),
		EntityID:       sched.EntityID,
	}
	if s.admission != nil {
		if err := s.admission.CheckRunQuota(ctx, orgID); err != nil {
			logger.Warn().Err(err).Msg("scheduled_run_skipped")
			return err
		}
		plan, err := s.admission.Plan(ctx, orgID)
		if err != nil {
			logger.Error().Err(err).Msg("scheduled_run_failed")
			return err
		}
		req.Plan = plan
	}

	res, err := s.runner.Run(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("scheduled_run_failed")
		return err
	}
	logger.Info().Str("run_id", res.ID).Msg("scheduled_run_completed")
	return nil
}

// Start begins executing registered cron jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered cron entries.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
