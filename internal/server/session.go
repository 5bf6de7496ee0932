package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/Navneet-55/msmesolut/internal/cryptoutil"
	"github.com/Navneet-55/msmesolut/internal/requestctx"
	"github.com/Navneet-55/msmesolut/internal/store"
)

const minPasswordLength = 6

type credentials struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	OrganizationID string `json:"organizationId"`
}

type authResponse struct {
	AccessToken  string              `json:"accessToken"`
	RefreshToken string              `json:"refreshToken"`
	ExpiresAt    time.Time           `json:"expiresAt"`
	User         *userView           `json:"user"`
	Organization *store.Organization `json:"organization,omitempty"`
}

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func viewUser(u *store.User) *userView {
	return &userView{ID: u.ID, Email: u.Email, Name: u.Name}
}

// handleRegister creates a user, a default organization owned by that user,
// and a session.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if !strings.Contains(req.Email, "@") || len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "a valid email and a password of at least 6 characters are required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	ctx := r.Context()
	user := &store.User{Email: req.Email, Name: req.Name, PasswordHash: string(hash)}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "conflict", "User already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	orgName := "My Organization"
	if req.Name != "" {
		orgName = req.Name + " Organization"
	}
	org := &store.Organization{Name: orgName, Slug: "org-" + user.ID}
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if err := s.store.AddMember(ctx, user.ID, org.ID, store.RoleOwner); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	resp, err := s.issueSession(ctx, user, org)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	log.Info().Str("user_id", user.ID).Str("organization_id", org.ID).Msg("user_registered")
	writeJSON(w, http.StatusCreated, resp)
}

// handleLogin checks the password and opens a session in the requested
// organization, or the user's first one.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	ctx := r.Context()
	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials")
		return
	}

	memberships, err := s.store.Memberships(ctx, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	var orgID string
	for _, m := range memberships {
		if req.OrganizationID == "" || m.OrganizationID == req.OrganizationID {
			orgID = m.OrganizationID
			break
		}
	}
	if orgID == "" {
		writeError(w, http.StatusForbidden, "forbidden", "User has no organization")
		return
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	resp, err := s.issueSession(ctx, user, org)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rotates a session: the old tokens stop working.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	ctx := r.Context()
	sess, err := s.store.SessionByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired refresh token")
		return
	}
	user, err := s.store.GetUser(ctx, sess.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired refresh token")
		return
	}
	org, err := s.store.GetOrganization(ctx, sess.OrganizationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if err := s.store.DeleteSession(ctx, sess.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	resp, err := s.issueSession(ctx, user, org)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMe returns the caller. API-key callers have an organization but no user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := map[string]interface{}{}

	org, err := s.store.GetOrganization(ctx, requestctx.OrganizationID(ctx))
	switch {
	case err == nil:
		resp["organization"] = org
	case errors.Is(err, store.ErrNotFound):
		resp["organization"] = map[string]string{"id": requestctx.OrganizationID(ctx)}
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	if userID := requestctx.UserID(ctx); userID != "" {
		user, err := s.store.GetUser(ctx, userID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "User no longer exists")
			return
		}
		resp["user"] = viewUser(user)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := sessionID(r.Context()); id != "" {
		if err := s.store.DeleteSession(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) issueSession(ctx context.Context, user *store.User, org *store.Organization) (*authResponse, error) {
	access, err := cryptoutil.NewToken()
	if err != nil {
		return nil, err
	}
	refresh, err := cryptoutil.NewToken()
	if err != nil {
		return nil, err
	}
	sess := &store.Session{
		UserID:         user.ID,
		OrganizationID: org.ID,
		Token:          access,
		RefreshToken:   refresh,
		ExpiresAt:      time.Now().Add(s.sessionTTL),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return &authResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    sess.ExpiresAt,
		User:         viewUser(user),
		Organization: org,
	}, nil
}
