package store

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	dashboardRecent     = 10
	dashboardWindowDays = 30
)

// Dashboard is the organization overview.
type Dashboard struct {
	Tickets      []Ticket         `json:"tickets"`
	Orders       []Order          `json:"orders"`
	Leads        []Lead           `json:"leads"`
	Transactions []Transaction    `json:"transactions"`
	Financials   FinancialSummary `json:"financials"`
}

// FinancialSummary totals the dashboard window.
type FinancialSummary struct {
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
	Net      float64 `json:"net"`
}

// Summarize totals income and expense transactions.
func Summarize(txs []Transaction) FinancialSummary {
	var fs FinancialSummary
	for _, t := range txs {
		switch t.Type {
		case TxIncome:
			fs.Revenue += t.Amount
		case TxExpense:
			fs.Expenses += t.Amount
		}
	}
	fs.Net = fs.Revenue - fs.Expenses
	return fs
}

// Dashboard loads the latest tickets, orders and leads plus the last 30 days
// of transactions. The four reads run concurrently; the first error cancels
// the rest.
func (s *Store) Dashboard(ctx context.Context, organizationID string) (*Dashboard, error) {
	ctx, span := tracer.Start(ctx, "store.dashboard",
		trace.WithAttributes(attribute.String("organization_id", organizationID)))
	defer span.End()

	var d Dashboard
	since := s.clock().AddDate(0, 0, -dashboardWindowDays)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Tickets, err = s.TicketsSince(gctx, organizationID, time.Time{}, dashboardRecent)
		return err
	})
	g.Go(func() error {
		var err error
		d.Orders, err = s.OrdersSince(gctx, organizationID, time.Time{}, dashboardRecent)
		return err
	})
	g.Go(func() error {
		var err error
		d.Leads, err = s.RecentLeads(gctx, organizationID, dashboardRecent)
		return err
	})
	g.Go(func() error {
		var err error
		d.Transactions, err = s.Transactions(gctx, organizationID, TransactionFilter{Since: since})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading dashboard: %w", err)
	}

	d.Financials = Summarize(d.Transactions)
	return &d, nil
}

// RecentLeads returns up to limit leads, newest first.
func (s *Store) RecentLeads(ctx context.Context, organizationID string, limit int) ([]Lead, error) {
	ctx, span := tracer.Start(ctx, "store.recent_leads")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE organization_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying leads: %w", err)
	}
	defer rows.Close()

	out := []Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lead: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// ActivityPage is one page of the organization's run history.
type ActivityPage struct {
	Items []AgentRun `json:"items"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
	Total int        `json:"total"`
}

// Activity pages through agent runs newest first. page is 1-based.
func (s *Store) Activity(ctx context.Context, organizationID string, page, limit int) (*ActivityPage, error) {
	ctx, span := tracer.Start(ctx, "store.activity")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_runs WHERE organization_id = ?`, organizationID).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM agent_runs r LEFT JOIN users u ON u.id = r.user_id
		 WHERE r.organization_id = ? ORDER BY r.created_at DESC, r.rowid DESC LIMIT ? OFFSET ?`,
		organizationID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	p := &ActivityPage{Items: []AgentRun{}, Page: page, Limit: limit, Total: total}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		p.Items = append(p.Items, *run)
	}
	return p, rows.Err()
}
