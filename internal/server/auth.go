// Package server provides the HTTP API server, middleware, and handlers for Lumina.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Navneet-55/msmesolut/internal/cryptoutil"
	"github.com/Navneet-55/msmesolut/internal/requestctx"
	"github.com/Navneet-55/msmesolut/internal/store"
	"github.com/Navneet-55/msmesolut/internal/tenant"
)

// SessionLookup resolves a session access token.
type SessionLookup interface {
	SessionByToken(ctx context.Context, token string) (*store.Session, error)
}

type sessionIDKey struct{}

// bearerToken returns the credential from X-Lumina-Key or Authorization: Bearer.
func bearerToken(r *http.Request) string {
	if key := r.Header.Get("X-Lumina-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// AuthMiddleware accepts either a configured API key (apiKeys maps key ->
// organization id) or a session token issued by login. Session requests also
// carry the user id.
func AuthMiddleware(apiKeys map[string]string, sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := bearerToken(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			var orgID string
			for k, org := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					orgID = org
					break
				}
			}
			if orgID != "" {
				r = r.WithContext(requestctx.SetOrganizationID(r.Context(), orgID))
				next.ServeHTTP(w, r)
				return
			}

			if sessions == nil || !cryptoutil.IsToken(key) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			sess, err := sessions.SessionByToken(r.Context(), key)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					log.Error().Err(err).Msg("session_lookup_failed")
				}
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			ctx := requestctx.SetOrganizationID(r.Context(), sess.OrganizationID)
			ctx = requestctx.SetUserID(ctx, sess.UserID)
			ctx = context.WithValue(ctx, sessionIDKey{}, sess.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionID returns the id of the session that authenticated the request.
func sessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey{}).(string)
	return v
}

// RateLimitMiddleware returns 429 with Retry-After when the organization's
// request rate is exceeded.
func RateLimitMiddleware(tm *tenant.Manager) func(http.Handler) http.Handler {
	if tm == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID := requestctx.OrganizationID(r.Context())
			if orgID == "" {
				next.ServeHTTP(w, r)
				return
			}
			if err := tm.Allow(orgID); err != nil {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware returns a middleware that sets CORS headers. allowedOrigins can be ["*"] for any.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" {
				for _, o := range allowedOrigins {
					if o == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						w.Header().Add("Vary", "Origin")
						break
					}
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Lumina-Key")
			w.Header().Set("Access-Control-Max-Age", "300")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes {"error": code, "message": message}.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
