package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const claimsKey contextKey = "claims"

// WithClaims returns a context carrying the authenticated claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFrom extracts the authenticated claims from the context.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// EmailFrom extracts the authenticated user's email from the context.
// Returns empty string if not found.
func EmailFrom(ctx context.Context) string {
	if claims, ok := ClaimsFrom(ctx); ok {
		return claims.Email
	}
	return ""
}

// RoleChecker grants capabilities from the token's role claim: teachers and
// admins can manage any project, students manage none.
type RoleChecker struct{}

func (RoleChecker) Can(ctx context.Context, userEmail, projectID, capability string) (bool, error) {
	claims, ok := ClaimsFrom(ctx)
	if !ok || claims.Email != userEmail {
		return false, nil
	}
	return claims.Role == RoleTeacher || claims.Role == RoleAdmin, nil
}

// AllowAll grants every capability. Used when authentication is disabled
// for local development.
type AllowAll struct{}

func (AllowAll) Can(ctx context.Context, userEmail, projectID, capability string) (bool, error) {
	return true, nil
}
