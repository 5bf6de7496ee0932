// Package requestctx carries the authenticated organization and user through
// a request context. Auth middleware sets them; handlers and agents read them.
package requestctx

import "context"

type contextKey struct{ name string }

var (
	organizationIDKey = &contextKey{"organization_id"}
	userIDKey         = &contextKey{"user_id"}
)

// SetOrganizationID stores the tenant organization id in the context.
func SetOrganizationID(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, organizationIDKey, organizationID)
}

// OrganizationID returns the organization id from context, or "" if not set.
func OrganizationID(ctx context.Context) string {
	v, _ := ctx.Value(organizationIDKey).(string)
	return v
}

// SetUserID stores the acting user id. API-key requests have no user.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the acting user id, or "" for API-key or scheduled calls.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}
