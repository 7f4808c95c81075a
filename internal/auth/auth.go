// Package auth resolves the caller's messaging identity from a bearer ID token.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/diewo77/go-members/internal/apperr"
	"github.com/diewo77/go-members/internal/httpx"
	"github.com/diewo77/go-members/internal/identity"
)

type ctxKey string

const claimsCtxKey = ctxKey("claims")

// WithClaims stores verified identity claims in ctx.
func WithClaims(ctx context.Context, c identity.Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, c)
}

// ClaimsFromContext returns the verified claims of the caller.
func ClaimsFromContext(ctx context.Context) (identity.Claims, bool) {
	c, ok := ctx.Value(claimsCtxKey).(identity.Claims)
	return c, ok && c.Subject != ""
}

// SubjectFromContext returns the caller's external identity id.
func SubjectFromContext(ctx context.Context) (string, bool) {
	c, ok := ClaimsFromContext(ctx)
	return c.Subject, ok
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Middleware attaches the claims of a valid bearer token to the request
// context. Requests without one pass through unauthenticated.
func Middleware(v identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := BearerToken(r); tok != "" {
				if c, err := v.Verify(r.Context(), tok); err == nil {
					r = r.WithContext(WithClaims(r.Context(), c))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSubject rejects requests without verified claims with 401.
func RequireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SubjectFromContext(r.Context()); !ok {
			httpx.Error(w, apperr.Auth("authenticate", identity.ErrInvalidToken))
			return
		}
		next.ServeHTTP(w, r)
	})
}
