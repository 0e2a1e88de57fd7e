package admission

import (
	"context"

	"github.com/vitalvas/gatekeeper/token"
)

type contextKey struct{}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext returns the claims stored by WithClaims, or nil.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(contextKey{}).(*token.Claims)
	return claims
}
