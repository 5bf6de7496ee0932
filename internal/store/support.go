package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Message senders.
const (
	SenderCustomer = "customer"
	SenderAgent    = "agent"
)

// Customer is a tenant's customer record.
type Customer struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Company        string    `json:"company,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Ticket is a support ticket. Version guards sentiment write-backs.
type Ticket struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	CustomerID     string    `json:"customerId,omitempty"`
	Number         string    `json:"number"`
	Subject        string    `json:"subject"`
	Description    string    `json:"description,omitempty"`
	Status         string    `json:"status"`
	Priority       string    `json:"priority"`
	Category       string    `json:"category,omitempty"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TicketMessage is one message in a ticket thread.
type TicketMessage struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticketId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Sentiment string    `json:"sentiment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// KnowledgeArticle is a knowledge-base entry (faq, manual, sop, policy, article).
type KnowledgeArticle struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	Category       string    `json:"category,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	IsPublic       bool      `json:"isPublic"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CreateCustomer inserts a customer.
func (s *Store) CreateCustomer(ctx context.Context, c *Customer) error {
	ctx, span := tracer.Start(ctx, "store.create_customer")
	defer span.End()

	if c.ID == "" {
		c.ID = newID()
	}
	c.CreatedAt = s.clock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, organization_id, name, email, phone, company, tags_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OrganizationID, c.Name, c.Email, c.Phone, c.Company, encodeStrings(c.Tags), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating customer: %w", err)
	}
	return nil
}

// GetCustomer returns a customer of the organization or ErrNotFound.
func (s *Store) GetCustomer(ctx context.Context, organizationID, id string) (*Customer, error) {
	ctx, span := tracer.Start(ctx, "store.get_customer")
	defer span.End()

	var c Customer
	var tags string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, email, phone, company, tags_json, created_at
		 FROM customers WHERE id = ? AND organization_id = ?`, id, organizationID).
		Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Email, &c.Phone, &c.Company, &tags, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying customer: %w", err)
	}
	c.Tags = decodeStrings(tags)
	return &c, nil
}

// CreateTicket inserts a ticket at version 1.
func (s *Store) CreateTicket(ctx context.Context, t *Ticket) error {
	ctx, span := tracer.Start(ctx, "store.create_ticket")
	defer span.End()

	if t.ID == "" {
		t.ID = newID()
	}
	if t.Status == "" {
		t.Status = "open"
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	t.Version = 1
	t.CreatedAt = s.clock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, organization_id, customer_id, number, subject, description, status, priority, category, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrganizationID, t.CustomerID, t.Number, t.Subject, t.Description, t.Status, t.Priority, t.Category, t.Version, t.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("ticket %s: %w", t.Number, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("creating ticket: %w", err)
	}
	return nil
}

const ticketColumns = `id, organization_id, customer_id, number, subject, description, status, priority, category, version, created_at`

func scanTicket(sc rowScanner) (*Ticket, error) {
	var t Ticket
	err := sc.Scan(&t.ID, &t.OrganizationID, &t.CustomerID, &t.Number, &t.Subject, &t.Description,
		&t.Status, &t.Priority, &t.Category, &t.Version, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTicket returns a ticket of the organization or ErrNotFound.
func (s *Store) GetTicket(ctx context.Context, organizationID, id string) (*Ticket, error) {
	ctx, span := tracer.Start(ctx, "store.get_ticket",
		trace.WithAttributes(attribute.String("ticket.id", id)))
	defer span.End()

	t, err := scanTicket(s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ? AND organization_id = ?`, id, organizationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying ticket: %w", err)
	}
	return t, nil
}

// TicketsSince lists tickets created at or after since, newest first.
func (s *Store) TicketsSince(ctx context.Context, organizationID string, since time.Time, limit int) ([]Ticket, error) {
	ctx, span := tracer.Start(ctx, "store.tickets_since")
	defer span.End()

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE organization_id = ? AND created_at >= ? ORDER BY created_at DESC`
	args := []interface{}{organizationID, since.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tickets: %w", err)
	}
	defer rows.Close()

	out := []Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ticket: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// AddTicketMessage appends a message to a ticket thread.
func (s *Store) AddTicketMessage(ctx context.Context, m *TicketMessage) error {
	ctx, span := tracer.Start(ctx, "store.add_ticket_message")
	defer span.End()

	if m.ID == "" {
		m.ID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock()
	}
	m.CreatedAt = m.CreatedAt.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_messages (id, ticket_id, sender, content, sentiment, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.TicketID, m.Sender, m.Content, nullString(m.Sentiment), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("adding ticket message: %w", err)
	}
	return nil
}

// RecentTicketMessages returns up to limit of the newest messages, in
// chronological order.
func (s *Store) RecentTicketMessages(ctx context.Context, ticketID string, limit int) ([]TicketMessage, error) {
	ctx, span := tracer.Start(ctx, "store.recent_ticket_messages")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ticket_id, sender, content, sentiment, created_at FROM ticket_messages
		 WHERE ticket_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, ticketID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ticket messages: %w", err)
	}
	defer rows.Close()

	out := []TicketMessage{}
	for rows.Next() {
		var m TicketMessage
		var sentiment sql.NullString
		if err := rows.Scan(&m.ID, &m.TicketID, &m.Sender, &m.Content, &sentiment, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ticket message: %w", err)
		}
		m.Sentiment = sentiment.String
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// UpdateTicketSentiment writes sentiment to every message of the ticket and
// bumps the ticket version. With optimistic writes enabled the update only
// applies when the ticket is still at version; otherwise ErrVersionConflict.
// Returns the new version.
func (s *Store) UpdateTicketSentiment(ctx context.Context, organizationID, ticketID string, version int64, sentiment string) (int64, error) {
	ctx, span := tracer.Start(ctx, "store.update_ticket_sentiment",
		trace.WithAttributes(
			attribute.String("ticket.id", ticketID),
			attribute.Int64("ticket.version", version),
			attribute.Bool("optimistic", s.optimistic),
		))
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `UPDATE tickets SET version = version + 1 WHERE id = ? AND organization_id = ?`
	args := []interface{}{ticketID, organizationID}
	if s.optimistic {
		query += ` AND version = ?`
		args = append(args, version)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bumping ticket version: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("checking affected rows: %w", err)
	} else if n == 0 {
		return 0, classifyMiss(ctx, tx, `SELECT 1 FROM tickets WHERE id = ? AND organization_id = ?`, ticketID, organizationID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ticket_messages SET sentiment = ? WHERE ticket_id = ?`, sentiment, ticketID); err != nil {
		return 0, fmt.Errorf("writing message sentiment: %w", err)
	}

	var newVersion int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM tickets WHERE id = ?`, ticketID).Scan(&newVersion); err != nil {
		return 0, fmt.Errorf("reading ticket version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing sentiment: %w", err)
	}
	return newVersion, nil
}

// classifyMiss distinguishes a vanished row from a stale version after a
// versioned update touched nothing.
func classifyMiss(ctx context.Context, tx *sql.Tx, existsQuery, id, organizationID string) error {
	var one int
	err := tx.QueryRowContext(ctx, existsQuery, id, organizationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking row existence: %w", err)
	}
	return ErrVersionConflict
}

// CreateKnowledgeArticle inserts a knowledge-base entry.
func (s *Store) CreateKnowledgeArticle(ctx context.Context, a *KnowledgeArticle) error {
	ctx, span := tracer.Start(ctx, "store.create_knowledge_article")
	defer span.End()

	if a.ID == "" {
		a.ID = newID()
	}
	a.CreatedAt = s.clock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_base (id, organization_id, title, content, type, category, tags_json, is_public, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrganizationID, a.Title, a.Content, a.Type, a.Category, encodeStrings(a.Tags), a.IsPublic, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating knowledge article: %w", err)
	}
	return nil
}

// KnowledgeByTypes returns up to limit articles of the given types, newest first.
func (s *Store) KnowledgeByTypes(ctx context.Context, organizationID string, types []string, limit int) ([]KnowledgeArticle, error) {
	ctx, span := tracer.Start(ctx, "store.knowledge_by_types")
	defer span.End()

	if len(types) == 0 {
		return []KnowledgeArticle{}, nil
	}
	args := append([]interface{}{organizationID}, stringArgs(types)...)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, organization_id, title, content, type, category, tags_json, is_public, created_at
		 FROM knowledge_base WHERE organization_id = ? AND type IN (`+placeholders(len(types))+`)
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge base: %w", err)
	}
	defer rows.Close()

	out := []KnowledgeArticle{}
	for rows.Next() {
		var a KnowledgeArticle
		var tags string
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.Title, &a.Content, &a.Type, &a.Category, &tags, &a.IsPublic, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning knowledge article: %w", err)
		}
		a.Tags = decodeStrings(tags)
		out = append(out, a)
	}
	return out, rows.Err()
}
