package auth

import (
	"context"
	"testing"
)

func TestWithAuthRoundTrip(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 7, FamilyID: 3, SessionID: 11})

	ac, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected auth context")
	}
	if ac.UserID != 7 {
		t.Errorf("UserID = %d, want 7", ac.UserID)
	}
	if ac.FamilyID != 3 {
		t.Errorf("FamilyID = %d, want 3", ac.FamilyID)
	}
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()

	if _, ok := FromContext(ctx); ok {
		t.Error("expected no auth context")
	}
	if got := FamilyID(ctx); got != 0 {
		t.Errorf("FamilyID = %d, want 0", got)
	}
	if got := UserID(ctx); got != 0 {
		t.Errorf("UserID = %d, want 0", got)
	}
}
