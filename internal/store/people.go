package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Employee is a member of the tenant's workforce.
type Employee struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	Name           string     `json:"name"`
	Email          string     `json:"email,omitempty"`
	Role           string     `json:"role,omitempty"`
	Department     string     `json:"department,omitempty"`
	Status         string     `json:"status"`
	HireDate       *time.Time `json:"hireDate,omitempty"`
}

// PlanTask is one step of an onboarding plan.
type PlanTask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	DueDate   string `json:"dueDate,omitempty"`
}

// OnboardingPlan is a structured onboarding program, optionally assigned to
// an employee.
type OnboardingPlan struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	EmployeeID     string     `json:"employeeId,omitempty"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	Tasks          []PlanTask `json:"tasks"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// CreateEmployee inserts an employee.
func (s *Store) CreateEmployee(ctx context.Context, e *Employee) error {
	ctx, span := tracer.Start(ctx, "store.create_employee")
	defer span.End()

	if e.ID == "" {
		e.ID = newID()
	}
	if e.Status == "" {
		e.Status = "active"
	}
	var hire sql.NullTime
	if e.HireDate != nil {
		hire = nullTime(*e.HireDate)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO employees (id, organization_id, name, email, role, department, status, hire_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrganizationID, e.Name, e.Email, e.Role, e.Department, e.Status, hire)
	if err != nil {
		return fmt.Errorf("creating employee: %w", err)
	}
	return nil
}

// GetEmployee returns an employee of the organization or ErrNotFound.
func (s *Store) GetEmployee(ctx context.Context, organizationID, id string) (*Employee, error) {
	ctx, span := tracer.Start(ctx, "store.get_employee")
	defer span.End()

	var e Employee
	var hire sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, email, role, department, status, hire_date
		 FROM employees WHERE id = ? AND organization_id = ?`, id, organizationID).
		Scan(&e.ID, &e.OrganizationID, &e.Name, &e.Email, &e.Role, &e.Department, &e.Status, &hire)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying employee: %w", err)
	}
	e.HireDate = timePtr(hire)
	return &e, nil
}

// CreateOnboardingPlan inserts a plan.
func (s *Store) CreateOnboardingPlan(ctx context.Context, p *OnboardingPlan) error {
	ctx, span := tracer.Start(ctx, "store.create_onboarding_plan")
	defer span.End()

	if p.ID == "" {
		p.ID = newID()
	}
	if p.Status == "" {
		p.Status = "not_started"
	}
	if p.Tasks == nil {
		p.Tasks = []PlanTask{}
	}
	p.CreatedAt = s.clock()
	tasks, err := json.Marshal(p.Tasks)
	if err != nil {
		return fmt.Errorf("marshaling plan tasks: %w", err)
	}
	var start sql.NullTime
	if p.StartDate != nil {
		start = nullTime(*p.StartDate)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO onboarding_plans (id, organization_id, employee_id, name, status, tasks_json, start_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrganizationID, p.EmployeeID, p.Name, p.Status, string(tasks), start, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating onboarding plan: %w", err)
	}
	return nil
}

// OnboardingPlans lists plans newest first. A non-empty employeeID restricts
// to that employee's plans.
func (s *Store) OnboardingPlans(ctx context.Context, organizationID, employeeID string, limit int) ([]OnboardingPlan, error) {
	ctx, span := tracer.Start(ctx, "store.onboarding_plans")
	defer span.End()

	query := `SELECT id, organization_id, employee_id, name, status, tasks_json, start_date, created_at
		FROM onboarding_plans WHERE organization_id = ?`
	args := []interface{}{organizationID}
	if employeeID != "" {
		query += ` AND employee_id = ?`
		args = append(args, employeeID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying onboarding plans: %w", err)
	}
	defer rows.Close()

	out := []OnboardingPlan{}
	for rows.Next() {
		var p OnboardingPlan
		var tasks string
		var start sql.NullTime
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.EmployeeID, &p.Name, &p.Status, &tasks, &start, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning onboarding plan: %w", err)
		}
		if err := json.Unmarshal([]byte(tasks), &p.Tasks); err != nil {
			return nil, fmt.Errorf("decoding plan tasks: %w", err)
		}
		p.StartDate = timePtr(start)
		out = append(out, p)
	}
	return out, rows.Err()
}
