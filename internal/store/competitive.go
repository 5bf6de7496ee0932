package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Competitor is a tracked market competitor.
type Competitor struct {
	ID             string              `json:"id"`
	OrganizationID string              `json:"organizationId"`
	Name           string              `json:"name"`
	Website        string              `json:"website,omitempty"`
	Industry       string              `json:"industry,omitempty"`
	Strengths      []string            `json:"strengths,omitempty"`
	Weaknesses     []string            `json:"weaknesses,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	Insights       []CompetitorInsight `json:"insights,omitempty"`
}

// CompetitorInsight is an observation about a competitor.
type CompetitorInsight struct {
	ID           string    `json:"id"`
	CompetitorID string    `json:"competitorId"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CreateCompetitor inserts a competitor.
func (s *Store) CreateCompetitor(ctx context.Context, c *Competitor) error {
	ctx, span := tracer.Start(ctx, "store.create_competitor")
	defer span.End()

	if c.ID == "" {
		c.ID = newID()
	}
	c.CreatedAt = s.clock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO competitors (id, organization_id, name, website, industry, strengths_json, weaknesses_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OrganizationID, c.Name, c.Website, c.Industry, encodeStrings(c.Strengths), encodeStrings(c.Weaknesses), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating competitor: %w", err)
	}
	return nil
}

const competitorColumns = `id, organization_id, name, website, industry, strengths_json, weaknesses_json, created_at`

func scanCompetitor(sc rowScanner) (*Competitor, error) {
	var c Competitor
	var strengths, weaknesses string
	if err := sc.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Website, &c.Industry, &strengths, &weaknesses, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Strengths = decodeStrings(strengths)
	c.Weaknesses = decodeStrings(weaknesses)
	return &c, nil
}

// GetCompetitor returns a competitor of the organization or ErrNotFound.
func (s *Store) GetCompetitor(ctx context.Context, organizationID, id string) (*Competitor, error) {
	ctx, span := tracer.Start(ctx, "store.get_competitor")
	defer span.End()

	c, err := scanCompetitor(s.db.QueryRowContext(ctx,
		`SELECT `+competitorColumns+` FROM competitors WHERE id = ? AND organization_id = ?`, id, organizationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying competitor: %w", err)
	}
	return c, nil
}

// ListCompetitors returns up to limit competitors, newest first. A
// non-positive limit returns all of them.
func (s *Store) ListCompetitors(ctx context.Context, organizationID string, limit int) ([]Competitor, error) {
	ctx, span := tracer.Start(ctx, "store.list_competitors")
	defer span.End()

	query := `SELECT ` + competitorColumns + ` FROM competitors WHERE organization_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []interface{}{organizationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying competitors: %w", err)
	}
	defer rows.Close()

	out := []Competitor{}
	for rows.Next() {
		c, err := scanCompetitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning competitor: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// AddCompetitorInsight records an insight.
func (s *Store) AddCompetitorInsight(ctx context.Context, in *CompetitorInsight) error {
	ctx, span := tracer.Start(ctx, "store.add_competitor_insight")
	defer span.End()

	if in.ID == "" {
		in.ID = newID()
	}
	in.CreatedAt = s.clock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO competitor_insights (id, competitor_id, type, title, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		in.ID, in.CompetitorID, in.Type, in.Title, in.Content, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("adding competitor insight: %w", err)
	}
	return nil
}

// CompetitorInsights returns up to limit insights, newest first.
func (s *Store) CompetitorInsights(ctx context.Context, competitorID string, limit int) ([]CompetitorInsight, error) {
	ctx, span := tracer.Start(ctx, "store.competitor_insights")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, competitor_id, type, title, content, created_at FROM competitor_insights
		 WHERE competitor_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, competitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying competitor insights: %w", err)
	}
	defer rows.Close()

	out := []CompetitorInsight{}
	for rows.Next() {
		var in CompetitorInsight
		if err := rows.Scan(&in.ID, &in.CompetitorID, &in.Type, &in.Title, &in.Content, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning competitor insight: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
