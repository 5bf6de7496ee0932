package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Notification is an in-app message for an organization or one of its users.
type Notification struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	UserID         string     `json:"userId,omitempty"`
	Type           string     `json:"type"`
	Title          string     `json:"title"`
	Message        string     `json:"message,omitempty"`
	Read           bool       `json:"read"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Integration is a configured connection to an external system.
type Integration struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId"`
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	Status         string         `json:"status"`
	Config         map[string]any `json:"config,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// NotificationLimit caps ListNotifications.
const NotificationLimit = 50

// CreateNotification inserts an unread notification.
func (s *Store) CreateNotification(ctx context.Context, n *Notification) error {
	ctx, span := tracer.Start(ctx, "store.create_notification")
	defer span.End()

	if n.ID == "" {
		n.ID = newID()
	}
	n.Read = false
	n.ReadAt = nil
	n.CreatedAt = s.clock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, organization_id, user_id, type, title, message, read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		n.ID, n.OrganizationID, n.UserID, n.Type, n.Title, n.Message, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

// ListNotifications returns the newest NotificationLimit notifications. A
// non-empty userID restricts to that user's notifications.
func (s *Store) ListNotifications(ctx context.Context, organizationID, userID string) ([]Notification, error) {
	ctx, span := tracer.Start(ctx, "store.list_notifications")
	defer span.End()

	query := `SELECT id, organization_id, user_id, type, title, message, read, read_at, created_at
		FROM notifications WHERE organization_id = ?`
	args := []interface{}{organizationID}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, NotificationLimit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.OrganizationID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Read, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.ReadAt = timePtr(readAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead sets read and readAt. ErrNotFound when the
// notification does not belong to the organization.
func (s *Store) MarkNotificationRead(ctx context.Context, organizationID, id string) error {
	ctx, span := tracer.Start(ctx, "store.mark_notification_read")
	defer span.End()

	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1, read_at = ? WHERE id = ? AND organization_id = ?`,
		s.clock(), id, organizationID)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	return requireAffected(res, "notification", id)
}

// CreateIntegration inserts an integration.
func (s *Store) CreateIntegration(ctx context.Context, in *Integration) error {
	ctx, span := tracer.Start(ctx, "store.create_integration")
	defer span.End()

	if in.ID == "" {
		in.ID = newID()
	}
	if in.Status == "" {
		in.Status = "active"
	}
	if in.Config == nil {
		in.Config = map[string]any{}
	}
	in.CreatedAt = s.clock()
	cfg, err := json.Marshal(in.Config)
	if err != nil {
		return fmt.Errorf("marshaling integration config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO integrations (id, organization_id, name, type, status, config_json, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.OrganizationID, in.Name, in.Type, in.Status, string(cfg), in.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating integration: %w", err)
	}
	return nil
}

// ListIntegrations returns the organization's integrations, newest first.
func (s *Store) ListIntegrations(ctx context.Context, organizationID string) ([]Integration, error) {
	ctx, span := tracer.Start(ctx, "store.list_integrations")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, organization_id, name, type, status, config_json, created_at FROM integrations
		 WHERE organization_id = ? ORDER BY created_at DESC, rowid DESC`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("querying integrations: %w", err)
	}
	defer rows.Close()

	out := []Integration{}
	for rows.Next() {
		var in Integration
		var cfg string
		if err := rows.Scan(&in.ID, &in.OrganizationID, &in.Name, &in.Type, &in.Status, &cfg, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning integration: %w", err)
		}
		if err := json.Unmarshal([]byte(cfg), &in.Config); err != nil {
			return nil, fmt.Errorf("decoding integration config: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
