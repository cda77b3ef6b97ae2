// ABOUTME: Request-scoped storage of verified claims
// ABOUTME: WithClaims attaches claims and user_id; readers never mutate them

package auth

import (
	"context"
)

type claimsContextKey struct{}

type userIDContextKey struct{}

// WithClaims returns a context carrying claims and their user id.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey{}, claims)
	return context.WithValue(ctx, userIDContextKey{}, claims.UserID)
}

// ClaimsFromContext returns the claims attached by the authentication stage.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}

// UserIDFromContext returns the authenticated user id.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDContextKey{}).(int64)
	return id, ok
}

// MustClaimsFromContext returns the attached claims, panicking if absent.
// Only call it from handlers registered behind RequireAuth.
func MustClaimsFromContext(ctx context.Context) *Claims {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		panic("auth: Claims not found in context")
	}
	return claims
}
