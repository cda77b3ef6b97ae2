// ABOUTME: Tests for request-scoped claims storage
// ABOUTME: Covers attach, lookup, and the panicking accessor

package auth

import (
	"context"
	"testing"
)

func TestWithClaims_RoundTrip(t *testing.T) {
	claims := &Claims{UserID: 9, Email: "a@example.com", Role: RoleShelter}
	ctx := WithClaims(context.Background(), claims)

	got, ok := ClaimsFromContext(ctx)
	if !ok {
		t.Fatal("expected claims in context")
	}
	if got != claims {
		t.Error("expected the same claims pointer")
	}

	id, ok := UserIDFromContext(ctx)
	if !ok || id != 9 {
		t.Errorf("UserIDFromContext() = %d, %v; want 9, true", id, ok)
	}
}

func TestClaimsFromContext_Missing(t *testing.T) {
	if _, ok := ClaimsFromContext(context.Background()); ok {
		t.Error("expected no claims")
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Error("expected no user id")
	}
}

func TestClaimsFromContext_DoesNotLeakAcrossContexts(t *testing.T) {
	parent := context.Background()
	a := WithClaims(parent, &Claims{UserID: 1})
	b := WithClaims(parent, &Claims{UserID: 2})

	idA, _ := UserIDFromContext(a)
	idB, _ := UserIDFromContext(b)
	if idA != 1 || idB != 2 {
		t.Errorf("got %d and %d, want 1 and 2", idA, idB)
	}
	if _, ok := ClaimsFromContext(parent); ok {
		t.Error("parent context must stay empty")
	}
}

func TestMustClaimsFromContext_Missing(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic")
		}
	}()
	MustClaimsFromContext(context.Background())
}
