// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Context keys and getter/setter functions live here so values set by
// middleware can be consumed by the audit pipeline without either side
// importing the other. Tests inject values directly:
//
//	ctx = requestcontext.WithPrincipal(ctx, "user-1", "MEDICO", "sess-1")
package requestcontext

import "context"

// Context key types (unexported for encapsulation).
type (
	userIDKey    struct{}
	userRoleKey  struct{}
	sessionIDKey struct{}
)

// UserID retrieves the authenticated user ID from the context. Empty when
// the request is unauthenticated.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithUserID injects a user ID into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserRole retrieves the raw role claim from the context.
func UserRole(ctx context.Context) string {
	if role, ok := ctx.Value(userRoleKey{}).(string); ok {
		return role
	}
	return ""
}

// WithUserRole injects a role into the context.
func WithUserRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, userRoleKey{}, role)
}

// SessionID retrieves the session ID from the context.
func SessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithSessionID injects a session ID into the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// WithPrincipal injects the full authenticated principal in one call.
func WithPrincipal(ctx context.Context, userID, role, sessionID string) context.Context {
	ctx = WithUserID(ctx, userID)
	ctx = WithUserRole(ctx, role)
	return WithSessionID(ctx, sessionID)
}
