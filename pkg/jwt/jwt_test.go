package jwt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateValidateRoundTrip(t *testing.T) {
	if err := Init("test-secret"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	token, err := Generate("m1", "mech@example.com", "mechanic")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	claims, err := Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != "m1" || claims.Role != "mechanic" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if err := Init("test-secret"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := Validate("not.a.token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestRequireAuthBlocksAnonymous(t *testing.T) {
	if err := Init("test-secret"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	called := false
	h := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	if called || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d (called=%v)", rec.Code, called)
	}
}

func TestOptionalAuthInjectsClaims(t *testing.T) {
	if err := Init("test-secret"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	token, err := Generate("mgr1", "mgr@example.com", "manager")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var got *Claims
	h := OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClaims(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil || got.UserID != "mgr1" || got.Role != "manager" {
		t.Fatalf("expected manager claims in context, got %+v", got)
	}
	if GetClaims(context.Background()) != nil {
		t.Fatalf("expected nil claims on empty context")
	}
}
