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

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Organization is a tenant.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is an account that can belong to organizations.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Membership joins a user to an organization.
type Membership struct {
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	Plan           string `json:"plan"`
	Role           string `json:"role"`
}

// Session is an issued access/refresh token pair.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId"`
	Token          string    `json:"token"`
	RefreshToken   string    `json:"refreshToken"`
	ExpiresAt      time.Time `json:"expiresAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CreateOrganization inserts an organization. ID is generated when empty.
func (s *Store) CreateOrganization(ctx context.Context, org *Organization) error {
	ctx, span := tracer.Start(ctx, "store.create_organization")
	defer span.End()

	if org.ID == "" {
		org.ID = newID()
	}
	if org.Plan == "" {
		org.Plan = "free"
	}
	if org.Slug == "" {
		org.Slug = "org-" + org.ID
	}
	org.CreatedAt = s.clock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, slug, plan, created_at) VALUES (?, ?, ?, ?, ?)`,
		org.ID, org.Name, org.Slug, org.Plan, org.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("organization %s: %w", org.Slug, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("creating organization: %w", err)
	}
	return nil
}

// GetOrganization returns the organization or ErrNotFound.
func (s *Store) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	ctx, span := tracer.Start(ctx, "store.get_organization",
		trace.WithAttributes(attribute.String("organization_id", id)))
	defer span.End()

	var o Organization
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, plan, created_at FROM organizations WHERE id = ?`, id).
		Scan(&o.ID, &o.Name, &o.Slug, &o.Plan, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying organization: %w", err)
	}
	return &o, nil
}

// CreateUser inserts a user. Emails are stored lowercased; a taken email
// yields ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	ctx, span := tracer.Start(ctx, "store.create_user")
	defer span.End()

	if u.ID == "" {
		u.ID = newID()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = s.clock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetUserByEmail returns the user or ErrNotFound.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	ctx, span := tracer.Start(ctx, "store.get_user_by_email")
	defer span.End()
	return s.getUser(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
}

// GetUser returns the user or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	ctx, span := tracer.Start(ctx, "store.get_user")
	defer span.End()
	return s.getUser(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (s *Store) getUser(ctx context.Context, query string, arg string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// AddMember grants a user a role in an organization.
func (s *Store) AddMember(ctx context.Context, userID, organizationID, role string) error {
	ctx, span := tracer.Start(ctx, "store.add_member")
	defer span.End()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO org_members (user_id, organization_id, role, created_at) VALUES (?, ?, ?, ?)`,
		userID, organizationID, role, s.clock())
	if isUniqueViolation(err) {
		return fmt.Errorf("membership %s/%s: %w", userID, organizationID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("adding member: %w", err)
	}
	return nil
}

// Memberships lists the organizations a user belongs to, oldest first.
func (s *Store) Memberships(ctx context.Context, userID string) ([]Membership, error) {
	ctx, span := tracer.Start(ctx, "store.memberships")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT o.id, o.name, o.slug, o.plan, m.role FROM org_members m
		 JOIN organizations o ON o.id = m.organization_id
		 WHERE m.user_id = ? ORDER BY m.created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying memberships: %w", err)
	}
	defer rows.Close()

	out := []Membership{}
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.OrganizationID, &m.Name, &m.Slug, &m.Plan, &m.Role); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateSession stores a session; tokens are generated by the caller.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	ctx, span := tracer.Start(ctx, "store.create_session")
	defer span.End()

	if sess.ID == "" {
		sess.ID = newID()
	}
	sess.CreatedAt = s.clock()
	sess.ExpiresAt = sess.ExpiresAt.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, organization_id, token, refresh_token, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.OrganizationID, sess.Token, sess.RefreshToken, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// SessionByToken returns an unexpired session for the access token.
func (s *Store) SessionByToken(ctx context.Context, token string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "store.session_by_token")
	defer span.End()
	return s.liveSession(ctx, `token = ?`, token)
}

// SessionByRefreshToken returns an unexpired session for the refresh token.
func (s *Store) SessionByRefreshToken(ctx context.Context, refresh string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "store.session_by_refresh_token")
	defer span.End()
	return s.liveSession(ctx, `refresh_token = ?`, refresh)
}

func (s *Store) liveSession(ctx context.Context, predicate, arg string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, organization_id, token, refresh_token, expires_at, created_at FROM sessions WHERE `+predicate,
		arg).Scan(&sess.ID, &sess.UserID, &sess.OrganizationID, &sess.Token, &sess.RefreshToken, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	if !sess.ExpiresAt.After(s.clock()) {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// DeleteSession removes a session by id.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "store.delete_session")
	defer span.End()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// PruneSessions deletes expired sessions and returns how many were removed.
func (s *Store) PruneSessions(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "store.prune_sessions")
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.clock())
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	return res.RowsAffected()
}
