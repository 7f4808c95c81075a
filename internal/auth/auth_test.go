package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diewo77/go-members/internal/identity"
)

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"":            "",
	}
	for header, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if got := BearerToken(r); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestMiddlewareAndRequireSubject(t *testing.T) {
	v := identity.NewLineVerifier("chan", "secret")
	good, err := v.Sign(identity.Claims{Subject: "U1", Name: "Mali"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var seen string
	h := Middleware(v)(RequireSubject(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + good, http.StatusNoContent},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"no token", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			r := httptest.NewRequest(http.MethodGet, "/api/me/card", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && seen != "U1" {
				t.Fatalf("subject = %q, want U1", seen)
			}
		})
	}
}

func TestClaimsFromContext(t *testing.T) {
	if _, ok := SubjectFromContext(context.Background()); ok {
		t.Fatal("empty context reported a subject")
	}
	if _, ok := SubjectFromContext(WithClaims(context.Background(), identity.Claims{})); ok {
		t.Fatal("claims without subject reported a subject")
	}
	c, ok := ClaimsFromContext(WithClaims(context.Background(), identity.Claims{Subject: "U1", Name: "Mali"}))
	if !ok || c.Name != "Mali" {
		t.Fatalf("ClaimsFromContext = %+v, %v", c, ok)
	}
}
