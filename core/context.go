package core

import "context"

type claimsKey struct{}

// ContextWithClaims attaches verified session claims to ctx
func ContextWithClaims(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims attached by ContextWithClaims
func ClaimsFromContext(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*SessionClaims)
	return claims, ok && claims != nil
}
