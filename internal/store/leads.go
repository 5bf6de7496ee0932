package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Lead statuses.
const (
	LeadNew       = "new"
	LeadContacted = "contacted"
	LeadQualified = "qualified"
	LeadConverted = "converted"
	LeadLost      = "lost"
)

// Lead is a sales prospect. Version guards scoring write-backs.
type Lead struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId"`
	Email          string         `json:"email"`
	Name           string         `json:"name,omitempty"`
	Company        string         `json:"company,omitempty"`
	Source         string         `json:"source,omitempty"`
	Status         string         `json:"status"`
	Score          int            `json:"score"`
	Enrichment     map[string]any `json:"enrichment,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// LeadUpdate lists the lead fields an agent may write back. Nil fields are
// left untouched.
type LeadUpdate struct {
	Status     *string
	Score      *int
	Enrichment map[string]any
}

// CreateLead inserts a lead at version 1.
func (s *Store) CreateLead(ctx context.Context, l *Lead) error {
	ctx, span := tracer.Start(ctx, "store.create_lead")
	defer span.End()

	if l.ID == "" {
		l.ID = newID()
	}
	if l.Status == "" {
		l.Status = LeadNew
	}
	l.Version = 1
	l.CreatedAt = s.clock()
	l.UpdatedAt = l.CreatedAt
	enrichment, err := nullableJSON(l.Enrichment)
	if err != nil {
		return fmt.Errorf("marshaling enrichment: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, organization_id, email, name, company, source, status, score, enrichment_json, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.OrganizationID, l.Email, l.Name, l.Company, l.Source, l.Status, l.Score, enrichment, l.Version, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating lead: %w", err)
	}
	return nil
}

const leadColumns = `id, organization_id, email, name, company, source, status, score, enrichment_json, version, created_at, updated_at`

func scanLead(sc rowScanner) (*Lead, error) {
	var l Lead
	var enrichment sql.NullString
	if err := sc.Scan(&l.ID, &l.OrganizationID, &l.Email, &l.Name, &l.Company, &l.Source, &l.Status, &l.Score,
		&enrichment, &l.Version, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	m, err := decodeMap(enrichment)
	if err != nil {
		return nil, fmt.Errorf("decoding enrichment: %w", err)
	}
	l.Enrichment = m
	return &l, nil
}

// GetLead returns a lead of the organization or ErrNotFound.
func (s *Store) GetLead(ctx context.Context, organizationID, id string) (*Lead, error) {
	ctx, span := tracer.Start(ctx, "store.get_lead",
		trace.WithAttributes(attribute.String("lead.id", id)))
	defer span.End()

	l, err := scanLead(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ? AND organization_id = ?`, id, organizationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying lead: %w", err)
	}
	return l, nil
}

// LeadsByStatus returns up to limit leads in any of statuses, most recently
// updated first.
func (s *Store) LeadsByStatus(ctx context.Context, organizationID string, statuses []string, limit int) ([]Lead, error) {
	ctx, span := tracer.Start(ctx, "store.leads_by_status")
	defer span.End()

	if len(statuses) == 0 {
		return []Lead{}, nil
	}
	args := append([]interface{}{organizationID}, stringArgs(statuses)...)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE organization_id = ? AND status IN (`+placeholders(len(statuses))+`)
		 ORDER BY updated_at DESC, rowid DESC LIMIT ?`, args...)
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

// UpdateLead applies u to the lead and bumps its version. With optimistic
// writes enabled the update only applies when the lead is still at version;
// otherwise ErrVersionConflict. Returns the new version.
func (s *Store) UpdateLead(ctx context.Context, organizationID, leadID string, version int64, u LeadUpdate) (int64, error) {
	ctx, span := tracer.Start(ctx, "store.update_lead",
		trace.WithAttributes(
			attribute.String("lead.id", leadID),
			attribute.Int64("lead.version", version),
			attribute.Bool("optimistic", s.optimistic),
		))
	defer span.End()

	sets := []string{"version = version + 1", "updated_at = ?"}
	args := []interface{}{s.clock()}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *u.Status)
	}
	if u.Score != nil {
		sets = append(sets, "score = ?")
		args = append(args, *u.Score)
	}
	if u.Enrichment != nil {
		enrichment, err := nullableJSON(u.Enrichment)
		if err != nil {
			return 0, fmt.Errorf("marshaling enrichment: %w", err)
		}
		sets = append(sets, "enrichment_json = ?")
		args = append(args, enrichment)
	}

	query := `UPDATE leads SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND organization_id = ?`
	args = append(args, leadID, organizationID)
	if s.optimistic {
		query += ` AND version = ?`
		args = append(args, version)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("updating lead: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("checking affected rows: %w", err)
	} else if n == 0 {
		return 0, classifyMiss(ctx, tx, `SELECT 1 FROM leads WHERE id = ? AND organization_id = ?`, leadID, organizationID)
	}

	var newVersion int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM leads WHERE id = ?`, leadID).Scan(&newVersion); err != nil {
		return 0, fmt.Errorf("reading lead version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing lead update: %w", err)
	}
	return newVersion, nil
}
