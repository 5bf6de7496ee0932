package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Campaign is a marketing campaign.
type Campaign struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	Name           string     `json:"name"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	Budget         float64    `json:"budget"`
	TargetAudience string     `json:"targetAudience,omitempty"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// CampaignMetric is one day of campaign performance.
type CampaignMetric struct {
	ID          string    `json:"id"`
	CampaignID  string    `json:"campaignId"`
	Date        time.Time `json:"date"`
	Impressions int       `json:"impressions"`
	Clicks      int       `json:"clicks"`
	Conversions int       `json:"conversions"`
	Spend       float64   `json:"spend"`
	Revenue     float64   `json:"revenue"`
}

// Content is a piece of marketing copy, optionally attached to a campaign.
type Content struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	CampaignID     string    `json:"campaignId,omitempty"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CreateCampaign inserts a campaign.
func (s *Store) CreateCampaign(ctx context.Context, c *Campaign) error {
	ctx, span := tracer.Start(ctx, "store.create_campaign")
	defer span.End()

	if c.ID == "" {
		c.ID = newID()
	}
	if c.Status == "" {
		c.Status = "draft"
	}
	c.CreatedAt = s.clock()
	var start sql.NullTime
	if c.StartDate != nil {
		start = nullTime(*c.StartDate)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, organization_id, name, type, status, budget, target_audience, start_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OrganizationID, c.Name, c.Type, c.Status, c.Budget, c.TargetAudience, start, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating campaign: %w", err)
	}
	return nil
}

// GetCampaign returns a campaign of the organization or ErrNotFound.
func (s *Store) GetCampaign(ctx context.Context, organizationID, id string) (*Campaign, error) {
	ctx, span := tracer.Start(ctx, "store.get_campaign")
	defer span.End()

	var c Campaign
	var start sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, type, status, budget, target_audience, start_date, created_at
		 FROM campaigns WHERE id = ? AND organization_id = ?`, id, organizationID).
		Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Type, &c.Status, &c.Budget, &c.TargetAudience, &start, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying campaign: %w", err)
	}
	c.StartDate = timePtr(start)
	return &c, nil
}

// AddCampaignMetric records one day of campaign performance.
func (s *Store) AddCampaignMetric(ctx context.Context, m *CampaignMetric) error {
	ctx, span := tracer.Start(ctx, "store.add_campaign_metric")
	defer span.End()

	if m.ID == "" {
		m.ID = newID()
	}
	if m.Date.IsZero() {
		m.Date = s.clock()
	}
	m.Date = m.Date.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaign_metrics (id, campaign_id, date, impressions, clicks, conversions, spend, revenue)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.CampaignID, m.Date, m.Impressions, m.Clicks, m.Conversions, m.Spend, m.Revenue)
	if err != nil {
		return fmt.Errorf("adding campaign metric: %w", err)
	}
	return nil
}

// CampaignMetrics returns up to limit of the most recent metric rows, newest first.
func (s *Store) CampaignMetrics(ctx context.Context, campaignID string, limit int) ([]CampaignMetric, error) {
	ctx, span := tracer.Start(ctx, "store.campaign_metrics")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, campaign_id, date, impressions, clicks, conversions, spend, revenue
		 FROM campaign_metrics WHERE campaign_id = ? ORDER BY date DESC LIMIT ?`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying campaign metrics: %w", err)
	}
	defer rows.Close()

	out := []CampaignMetric{}
	for rows.Next() {
		var m CampaignMetric
		if err := rows.Scan(&m.ID, &m.CampaignID, &m.Date, &m.Impressions, &m.Clicks, &m.Conversions, &m.Spend, &m.Revenue); err != nil {
			return nil, fmt.Errorf("scanning campaign metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateContent inserts a content item.
func (s *Store) CreateContent(ctx context.Context, c *Content) error {
	ctx, span := tracer.Start(ctx, "store.create_content")
	defer span.End()

	if c.ID == "" {
		c.ID = newID()
	}
	if c.Status == "" {
		c.Status = "draft"
	}
	c.CreatedAt = s.clock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contents (id, organization_id, campaign_id, title, body, type, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OrganizationID, c.CampaignID, c.Title, c.Body, c.Type, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating content: %w", err)
	}
	return nil
}

// CampaignContents returns up to limit content items of a campaign, newest first.
func (s *Store) CampaignContents(ctx context.Context, campaignID string, limit int) ([]Content, error) {
	ctx, span := tracer.Start(ctx, "store.campaign_contents")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, organization_id, campaign_id, title, body, type, status, created_at
		 FROM contents WHERE campaign_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying contents: %w", err)
	}
	defer rows.Close()

	out := []Content{}
	for rows.Next() {
		var c Content
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.CampaignID, &c.Title, &c.Body, &c.Type, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning content: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
