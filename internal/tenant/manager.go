// Package tenant provides per-organization request admission: rate limiting,
// daily run quotas and plan lookup, configured from lumina.tenants.yaml.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Navneet-55/msmesolut/internal/store"
)

var (
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrDailyRunLimitExceeded = errors.New("daily run limit exceeded")
)

// OrganizationSource resolves the plan stored on an organization.
type OrganizationSource interface {
	GetOrganization(ctx context.Context, id string) (*store.Organization, error)
}

// RunCounter counts an organization's recent runs.
type RunCounter interface {
	CountRunsSince(ctx context.Context, organizationID string, since time.Time) (int, error)
}

// Manager admits requests per organization. Organizations absent from the
// tenants file use the default rate limit and their stored plan.
type Manager struct {
	tenants     map[string]*Tenant
	limiters    map[string]*rate.Limiter
	defaultRate int
	orgs        OrganizationSource
	runs        RunCounter
	now         func() time.Time
	mu          sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithDefaultRateLimit sets requests per second for organizations without
// their own limit. 0 disables limiting for them.
func WithDefaultRateLimit(rps int) Option {
	return func(m *Manager) { m.defaultRate = rps }
}

// WithOrganizations resolves plans from the store when the tenants file has none.
func WithOrganizations(src OrganizationSource) Option {
	return func(m *Manager) { m.orgs = src }
}

// WithRunCounter enables daily run limits.
func WithRunCounter(rc RunCounter) Option {
	return func(m *Manager) { m.runs = rc }
}

// NewManager creates a tenant manager over the given tenants.
func NewManager(tenants []Tenant, opts ...Option) *Manager {
	m := &Manager{
		tenants:  make(map[string]*Tenant, len(tenants)),
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	for i := range tenants {
		t := &tenants[i]
		m.tenants[t.ID] = t
	}
	return m
}

// Tenant returns the configured tenant, if any.
func (m *Manager) Tenant(organizationID string) (*Tenant, bool) {
	t, ok := m.tenants[organizationID]
	return t, ok
}

// Tenants returns every configured tenant.
func (m *Manager) Tenants() []Tenant {
	out := make([]Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, *t)
	}
	return out
}

// Allow consumes one request token for the organization.
func (m *Manager) Allow(organizationID string) error {
	if lim := m.limiter(organizationID); lim != nil && !lim.Allow() {
		return ErrRateLimitExceeded
	}
	return nil
}

// CheckRunQuota fails when the organization already used its runs for the
// current UTC day.
func (m *Manager) CheckRunQuota(ctx context.Context, organizationID string) error {
	t, ok := m.tenants[organizationID]
	if !ok || t.DailyRunLimit == 0 || m.runs == nil {
		return nil
	}
	now := m.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	n, err := m.runs.CountRunsSince(ctx, organizationID, dayStart)
	if err != nil {
		return fmt.Errorf("counting runs: %w", err)
	}
	if n >= t.DailyRunLimit {
		return ErrDailyRunLimitExceeded
	}
	return nil
}

// Plan returns the organization's plan: the tenants file entry first, then
// the stored organization. An unknown organization has an empty plan.
func (m *Manager) Plan(ctx context.Context, organizationID string) (string, error) {
	if t, ok := m.tenants[organizationID]; ok && t.Plan != "" {
		return t.Plan, nil
	}
	if m.orgs == nil {
		return "", nil
	}
	org, err := m.orgs.GetOrganization(ctx, organizationID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading organization plan: %w", err)
	}
	return org.Plan, nil
}

func (m *Manager) limiter(organizationID string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lim, ok := m.limiters[organizationID]; ok {
		return lim
	}
	rps := m.defaultRate
	if t, ok := m.tenants[organizationID]; ok && t.RateLimit > 0 {
		rps = t.RateLimit
	}
	if rps <= 0 {
		return nil
	}
	lim := rate.NewLimiter(rate.Limit(rps), rps*2) // burst = 2s worth
	m.limiters[organizationID] = lim
	return lim
}
